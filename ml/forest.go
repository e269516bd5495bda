package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sync"
)

type ForestConfig struct {
	Task        Task  `json:"task"`
	NumTrees    int   `json:"num_trees"`
	MaxDepth    int   `json:"max_depth"`
	MaxFeatures int   `json:"max_features"`
	Seed        int64 `json:"seed"`
	Workers     int   `json:"-"`
}

func DefaultForestConfig(task Task) ForestConfig {
	return ForestConfig{
		Task:     task,
		NumTrees: 100,
		MaxDepth: defaultMaxDepth,
		Seed:     42,
		Workers:  runtime.NumCPU(),
	}
}

// RandomForest averages bootstrap-trained trees. Each tree gets its own
// seed derived from Config.Seed, so training is deterministic regardless of
// worker scheduling.
type RandomForest struct {
	Config      ForestConfig    `json:"config"`
	NumFeatures int             `json:"num_features"`
	Trees       []*DecisionTree `json:"trees"`
}

func NewRandomForest(cfg ForestConfig) *RandomForest {
	return &RandomForest{Config: cfg}
}

func (f *RandomForest) Trained() bool {
	return len(f.Trees) > 0
}

func (f *RandomForest) Fit(features [][]float64, targets []float64) error {
	if f.Trained() {
		return ErrAlreadyFitted
	}
	if err := validateTrainingData(features, targets); err != nil {
		return err
	}

	cfg := f.Config
	if cfg.Task == "" {
		cfg.Task = TaskRegression
	}
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	n := len(features)
	p := len(features[0])
	maxFeatures := cfg.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = p
		if cfg.Task == TaskClassification {
			maxFeatures = int(math.Max(1, math.Sqrt(float64(p))))
		}
	}

	trees := make([]*DecisionTree, cfg.NumTrees)
	errs := make([]error, cfg.NumTrees)
	sem := make(chan struct{}, cfg.Workers)
	var wg sync.WaitGroup

	for i := range trees {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			rows := make([]int, n)
			for j := range rows {
				rows[j] = rng.Intn(n)
			}
			tree := NewDecisionTree(TreeConfig{
				Task:        cfg.Task,
				MaxDepth:    cfg.MaxDepth,
				MaxFeatures: maxFeatures,
				Seed:        rng.Int63(),
			})
			if err := tree.fitRows(features, targets, rows); err != nil {
				errs[i] = fmt.Errorf("tree %d: %w", i, err)
				return
			}
			trees[i] = tree
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	f.Config = cfg
	f.NumFeatures = p
	f.Trees = trees
	return nil
}

func (f *RandomForest) Predict(features []float64) (float64, error) {
	if !f.Trained() {
		return 0, ErrNotTrained
	}
	var total float64
	for _, tree := range f.Trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total / float64(len(f.Trees)), nil
}

// PredictClass is a majority vote of the trees; a tie is negative.
func (f *RandomForest) PredictClass(features []float64) (bool, error) {
	if !f.Trained() {
		return false, ErrNotTrained
	}
	votes := 0
	for _, tree := range f.Trees {
		positive, err := tree.PredictClass(features)
		if err != nil {
			return false, err
		}
		if positive {
			votes++
		}
	}
	return votes*2 > len(f.Trees), nil
}

func (f *RandomForest) Save(path string) error {
	if !f.Trained() {
		return ErrNotTrained
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (f *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded RandomForest
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	if len(loaded.Trees) == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotTrained)
	}
	*f = loaded
	return nil
}
