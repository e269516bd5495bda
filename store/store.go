package store

import (
	"math"
	"time"

	"flightdash/models"
	"flightdash/pipeline"
)

// Store holds the cleaned dataset in memory. It is never mutated after
// construction, so every query method is safe for concurrent use.
type Store struct {
	records  []models.FlightRecord
	stats    pipeline.CleaningStats
	issues   []pipeline.QualityIssue
	source   string
	loadedAt time.Time
}

// Load reads, parses and cleans the dataset at path.
func Load(path string, opts pipeline.LoadOptions) (*Store, error) {
	ds, err := pipeline.ReadFile(path, opts)
	if err != nil {
		return nil, err
	}
	return FromDataset(ds), nil
}

// FromDataset wraps an already cleaned dataset.
func FromDataset(ds *pipeline.Dataset) *Store {
	s := New(ds.Records, ds.Stats)
	s.issues = append([]pipeline.QualityIssue(nil), ds.Issues...)
	s.source = ds.Source
	s.loadedAt = ds.LoadedAt
	return s
}

// New builds a store over records that are assumed to be cleaned already.
func New(records []models.FlightRecord, stats pipeline.CleaningStats) *Store {
	return &Store{
		records:  append([]models.FlightRecord(nil), records...),
		stats:    stats,
		loadedAt: time.Now(),
	}
}

func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of the rows in store order.
func (s *Store) Records() []models.FlightRecord {
	return append([]models.FlightRecord(nil), s.records...)
}

func (s *Store) CleaningStats() pipeline.CleaningStats {
	return s.stats
}

func (s *Store) Issues() []pipeline.QualityIssue {
	return append([]pipeline.QualityIssue(nil), s.issues...)
}

func (s *Store) Source() string {
	return s.source
}

func (s *Store) LoadedAt() time.Time {
	return s.loadedAt
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
