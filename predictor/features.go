package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"flightdash/ml"
	"flightdash/models"
)

var categoricalColumns = []string{
	models.ColAirline,
	models.ColDepartureAirport,
	models.ColArrivalAirport,
	models.ColGender,
	models.ColIncomeLevel,
	models.ColTravelPurpose,
	models.ColSeatClass,
	models.ColCheckInMethod,
	models.ColSeatSelected,
}

var numericColumns = []string{
	models.ColDuration,
	models.ColDistance,
	models.ColPrice,
	models.ColAge,
	models.ColBagsChecked,
	models.ColBookingDaysInAdvance,
	models.ColWeatherImpact,
}

// CategoricalColumns lists the encoded features in vector order.
func CategoricalColumns() []string {
	return append([]string(nil), categoricalColumns...)
}

// NumericColumns lists the numeric features; they follow the categoricals in
// the feature vector.
func NumericColumns() []string {
	return append([]string(nil), numericColumns...)
}

// FeatureRecord is the fixed input schema shared by all three models.
type FeatureRecord struct {
	Airline          string `json:"Airline"`
	DepartureAirport string `json:"Departure_Airport"`
	ArrivalAirport   string `json:"Arrival_Airport"`
	Gender           string `json:"Gender"`
	IncomeLevel      string `json:"Income_Level"`
	TravelPurpose    string `json:"Travel_Purpose"`
	SeatClass        string `json:"Seat_Class"`
	CheckInMethod    string `json:"Check_in_Method"`
	SeatSelected     string `json:"Seat_Selected"`

	DurationMinutes      float64 `json:"Flight_Duration_Minutes"`
	DistanceMiles        float64 `json:"Distance_Miles"`
	PriceUSD             float64 `json:"Price_USD"`
	Age                  float64 `json:"Age"`
	BagsChecked          float64 `json:"Bags_Checked"`
	BookingDaysInAdvance float64 `json:"Booking_Days_In_Advance"`
	WeatherImpact        float64 `json:"Weather_Impact"`
}

// FromFlight extracts the model features of a dataset row.
func FromFlight(r *models.FlightRecord) FeatureRecord {
	return FeatureRecord{
		Airline:              r.Airline,
		DepartureAirport:     r.DepartureAirport,
		ArrivalAirport:       r.ArrivalAirport,
		Gender:               r.Gender,
		IncomeLevel:          r.IncomeLevel,
		TravelPurpose:        r.TravelPurpose,
		SeatClass:            r.SeatClass,
		CheckInMethod:        r.CheckInMethod,
		SeatSelected:         r.SeatSelected,
		DurationMinutes:      r.DurationMinutes,
		DistanceMiles:        r.DistanceMiles,
		PriceUSD:             r.PriceUSD,
		Age:                  r.Age,
		BagsChecked:          r.BagsChecked,
		BookingDaysInAdvance: r.BookingDaysInAdvance,
		WeatherImpact:        r.WeatherImpact,
	}
}

func (f *FeatureRecord) categorical(col string) *string {
	switch col {
	case models.ColAirline:
		return &f.Airline
	case models.ColDepartureAirport:
		return &f.DepartureAirport
	case models.ColArrivalAirport:
		return &f.ArrivalAirport
	case models.ColGender:
		return &f.Gender
	case models.ColIncomeLevel:
		return &f.IncomeLevel
	case models.ColTravelPurpose:
		return &f.TravelPurpose
	case models.ColSeatClass:
		return &f.SeatClass
	case models.ColCheckInMethod:
		return &f.CheckInMethod
	case models.ColSeatSelected:
		return &f.SeatSelected
	}
	return nil
}

func (f *FeatureRecord) numeric(col string) *float64 {
	switch col {
	case models.ColDuration:
		return &f.DurationMinutes
	case models.ColDistance:
		return &f.DistanceMiles
	case models.ColPrice:
		return &f.PriceUSD
	case models.ColAge:
		return &f.Age
	case models.ColBagsChecked:
		return &f.BagsChecked
	case models.ColBookingDaysInAdvance:
		return &f.BookingDaysInAdvance
	case models.ColWeatherImpact:
		return &f.WeatherImpact
	}
	return nil
}

// ParseFeatureRecord builds a record from a decoded JSON object. Every
// feature must be present. Numerics accept JSON numbers and numeric strings;
// Weather_Impact also accepts booleans. Unknown keys are ignored.
func ParseFeatureRecord(m map[string]interface{}) (FeatureRecord, error) {
	var f FeatureRecord
	for _, col := range categoricalColumns {
		raw, ok := m[col]
		if !ok || raw == nil {
			return FeatureRecord{}, &MissingFeatureError{Field: col}
		}
		s, ok := raw.(string)
		if !ok {
			return FeatureRecord{}, &MissingFeatureError{Field: col, Reason: fmt.Sprintf("expected a string, got %T", raw)}
		}
		*f.categorical(col) = strings.TrimSpace(s)
	}
	for _, col := range numericColumns {
		raw, ok := m[col]
		if !ok || raw == nil {
			return FeatureRecord{}, &MissingFeatureError{Field: col}
		}
		v, err := toFloat(col, raw)
		if err != nil {
			return FeatureRecord{}, &MissingFeatureError{Field: col, Reason: err.Error()}
		}
		*f.numeric(col) = v
	}
	return f, f.Validate()
}

func toFloat(col string, raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	case bool:
		if col != models.ColWeatherImpact {
			return 0, fmt.Errorf("expected a number, got a boolean")
		}
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}

// Validate rejects empty categoricals and non-finite numerics.
func (f FeatureRecord) Validate() error {
	for _, col := range categoricalColumns {
		if *f.categorical(col) == "" {
			return &MissingFeatureError{Field: col, Reason: "empty value"}
		}
	}
	for _, col := range numericColumns {
		v := *f.numeric(col)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &MissingFeatureError{Field: col, Reason: "not a finite number"}
		}
	}
	return nil
}

// Map renders the record with dataset column names as keys.
func (f FeatureRecord) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(categoricalColumns)+len(numericColumns))
	for _, col := range categoricalColumns {
		m[col] = *f.categorical(col)
	}
	for _, col := range numericColumns {
		m[col] = *f.numeric(col)
	}
	return m
}

// Vector encodes the record: categorical codes first, then numerics.
func (f FeatureRecord) Vector(enc *ml.EncoderSet) ([]float64, error) {
	x := make([]float64, 0, len(categoricalColumns)+len(numericColumns))
	for _, col := range categoricalColumns {
		code, err := enc.Encode(col, *f.categorical(col))
		if err != nil {
			return nil, err
		}
		x = append(x, float64(code))
	}
	for _, col := range numericColumns {
		x = append(x, *f.numeric(col))
	}
	return x, nil
}
