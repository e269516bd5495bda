package app

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"flightdash/predictor"
	"flightdash/store"
)

// Snapshot is one immutable generation of the dashboard: the cleaned store,
// the predictor trained on it and a prediction cache scoped to both.
type Snapshot struct {
	ID        string
	Store     *store.Store
	Predictor *predictor.Predictor
	Trigger   string
	BuiltAt   time.Time

	cache *lru.Cache[string, interface{}]
}

func newSnapshot(id string, st *store.Store, p *predictor.Predictor, trigger string, cacheSize int) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        id,
		Store:     st,
		Predictor: p,
		Trigger:   trigger,
		BuiltAt:   time.Now(),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, interface{}](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
		snap.cache = cache
	}
	return snap, nil
}

func cacheKey(target predictor.Target, rec predictor.FeatureRecord) string {
	return fmt.Sprintf("%s|%+v", target, rec)
}

func (s *Snapshot) cached(key string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Snapshot) remember(key string, v interface{}) {
	if s.cache != nil {
		s.cache.Add(key, v)
	}
}

// Status summarizes the snapshot for the dashboard.
type Status struct {
	SnapshotID string                   `json:"snapshot_id"`
	Trigger    string                   `json:"trigger"`
	BuiltAt    time.Time                `json:"built_at"`
	Source     string                   `json:"source"`
	Rows       int                      `json:"rows"`
	Trained    bool                     `json:"trained"`
	Report     predictor.TrainingReport `json:"report"`
}

func (s *Snapshot) Status() Status {
	return Status{
		SnapshotID: s.ID,
		Trigger:    s.Trigger,
		BuiltAt:    s.BuiltAt,
		Source:     s.Store.Source(),
		Rows:       s.Store.Len(),
		Trained:    s.Predictor.Trained(),
		Report:     s.Predictor.Report(),
	}
}
