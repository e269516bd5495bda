package pipeline

import (
	"testing"
	"time"

	"flightdash/models"

	"go.uber.org/zap"
)

func record(id string) models.FlightRecord {
	return models.FlightRecord{
		PassengerID:         id,
		FlightID:            "F-" + id,
		Airline:             "Delta",
		DepartureAirport:    "JFK",
		ArrivalAirport:      "LAX",
		DepartureTime:       time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
		DurationMinutes:     320,
		DistanceMiles:       2475,
		PriceUSD:            420,
		Age:                 35,
		Gender:              "Female",
		FrequentFlyerStatus: "Gold",
		Status:              models.StatusOnTime,
		SatisfactionScore:   7,
	}
}

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(zap.NewNop())
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}

	if len(cleaner.rules) != 3 {
		t.Errorf("expected 3 default rules, got %d", len(cleaner.rules))
	}
}

func TestMagnitudeRule(t *testing.T) {
	rule := NewMagnitudeRule()

	tests := []struct {
		name         string
		duration     float64
		distance     float64
		wantDuration float64
		wantDistance float64
	}{
		{"positive values untouched", 120, 800, 120, 800},
		{"negative duration", -120, 800, 120, 800},
		{"negative distance", 120, -800, 120, 800},
		{"both negative", -45, -210, 45, 210},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("P1")
			rec.DurationMinutes = tt.duration
			rec.DistanceMiles = tt.distance

			out, err := rule.Apply(&rec)
			if err != nil {
				t.Fatalf("MagnitudeRule.Apply() error = %v", err)
			}
			if out.DurationMinutes != tt.wantDuration || out.DistanceMiles != tt.wantDistance {
				t.Errorf("got (%v, %v), want (%v, %v)", out.DurationMinutes, out.DistanceMiles, tt.wantDuration, tt.wantDistance)
			}
		})
	}
}

func TestFrequentFlyerFillRule(t *testing.T) {
	rule := NewFrequentFlyerFillRule()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"empty filled", "", "None"},
		{"present kept", "Silver", "Silver"},
		{"explicit none kept", "None", "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("P1")
			rec.FrequentFlyerStatus = tt.value
			out, _ := rule.Apply(&rec)
			if out.FrequentFlyerStatus != tt.want {
				t.Errorf("got %q, want %q", out.FrequentFlyerStatus, tt.want)
			}
		})
	}
}

func TestDuplicatePassengerRule(t *testing.T) {
	rule := NewDuplicatePassengerRule()

	first := record("P1")
	if _, err := rule.Apply(&first); err != nil {
		t.Fatalf("first occurrence rejected: %v", err)
	}
	dup := record("P1")
	if _, err := rule.Apply(&dup); err == nil {
		t.Error("expected duplicate to be rejected")
	}

	rule.Reset()
	again := record("P1")
	if _, err := rule.Apply(&again); err != nil {
		t.Errorf("after Reset the passenger should be accepted, got %v", err)
	}
}

func TestDataCleaner_Clean(t *testing.T) {
	cleaner := NewDataCleaner(zap.NewNop())

	a := record("P1")
	b := record("P2")
	b.DurationMinutes = -90
	b.FrequentFlyerStatus = ""
	dup := record("P1")
	dup.Airline = "United"

	cleaned, issues := cleaner.Clean([]models.FlightRecord{a, b, dup})

	if len(cleaned) != 2 {
		t.Fatalf("expected 2 cleaned records, got %d", len(cleaned))
	}
	if cleaned[0].PassengerID != "P1" || cleaned[0].Airline != "Delta" {
		t.Errorf("first occurrence should win, got %+v", cleaned[0])
	}
	if cleaned[1].DurationMinutes != 90 || cleaned[1].FrequentFlyerStatus != "None" {
		t.Errorf("record not corrected: %+v", cleaned[1])
	}
	if len(issues) != 1 || issues[0].Type != "duplicate_passenger" || issues[0].Row != 3 {
		t.Errorf("unexpected issues: %+v", issues)
	}

	stats := cleaner.GetStats()
	if stats.TotalProcessed != 3 || stats.Passed != 2 || stats.Rejected != 1 || stats.Corrected != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Issues["magnitude_normalization"] != 1 || stats.Issues["frequent_flyer_fill"] != 1 {
		t.Errorf("unexpected per-rule counts: %v", stats.Issues)
	}
}

func TestDataCleaner_CleanDoesNotMutateInput(t *testing.T) {
	cleaner := NewDataCleaner(zap.NewNop())
	in := []models.FlightRecord{record("P1")}
	in[0].DistanceMiles = -100

	cleaner.Clean(in)

	if in[0].DistanceMiles != -100 {
		t.Errorf("input was mutated: %v", in[0].DistanceMiles)
	}
}

func TestDataCleaner_CleanIdempotentOnConcatenation(t *testing.T) {
	cleaner := NewDataCleaner(zap.NewNop())
	xs := []models.FlightRecord{record("P1"), record("P2"), record("P3")}
	xs[1].FrequentFlyerStatus = ""

	once, _ := cleaner.Clean(xs)
	twice, _ := cleaner.Clean(append(append([]models.FlightRecord{}, xs...), xs...))
	again, _ := cleaner.Clean(once)

	if len(once) != len(twice) {
		t.Fatalf("clean(xs++xs) kept %d rows, clean(xs) kept %d", len(twice), len(once))
	}
	for i := range once {
		if once[i] != twice[i] || once[i] != again[i] {
			t.Errorf("row %d differs between runs", i)
		}
	}
}
