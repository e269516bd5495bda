package ml

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
)

func syntheticClassification(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]float64, n)
	for i := range features {
		a, b, c := rng.Float64(), rng.Float64(), float64(rng.Intn(4))
		features[i] = []float64{a, b, c}
		if a+b > 1 {
			labels[i] = 1
		}
	}
	return features, labels
}

func TestRandomForestDeterministic(t *testing.T) {
	features, labels := syntheticClassification(300, 1)
	cfg := ForestConfig{Task: TaskClassification, NumTrees: 15, MaxDepth: 6, Seed: 42}

	first := NewRandomForest(cfg)
	cfg.Workers = 1
	second := NewRandomForest(cfg)
	if err := first.Fit(features, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if err := second.Fit(features, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}

	samples, _ := syntheticClassification(50, 2)
	for _, x := range samples {
		p1, _ := first.Predict(x)
		p2, _ := second.Predict(x)
		if p1 != p2 {
			t.Fatalf("forests with the same seed disagree: %v vs %v", p1, p2)
		}
	}
}

func TestRandomForestLearnsBoundary(t *testing.T) {
	features, labels := syntheticClassification(600, 3)
	train, test := TrainTestSplit(len(features), 0.2, 42)
	xTrain, yTrain := Subset(features, labels, train)
	xTest, yTest := Subset(features, labels, test)

	forest := NewRandomForest(ForestConfig{Task: TaskClassification, NumTrees: 25, MaxDepth: 8, Seed: 42})
	if err := forest.Fit(xTrain, yTrain); err != nil {
		t.Fatalf("fit: %v", err)
	}
	eval, err := Evaluate(forest, TaskClassification, xTest, yTest)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.Accuracy < 0.8 {
		t.Fatalf("expected accuracy >= 0.8, got %f", eval.Accuracy)
	}
	for _, x := range xTest {
		p, _ := forest.Predict(x)
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range: %f", p)
		}
	}
}

func TestRandomForestRegression(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var features [][]float64
	var targets []float64
	for i := 0; i < 400; i++ {
		x := rng.Float64() * 10
		features = append(features, []float64{x, rng.Float64()})
		targets = append(targets, 3*x+1)
	}
	forest := NewRandomForest(ForestConfig{NumTrees: 20, MaxDepth: 8, Seed: 42})
	if err := forest.Fit(features, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}
	eval, err := Evaluate(forest, TaskRegression, features, targets)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.R2 < 0.9 {
		t.Fatalf("expected R2 >= 0.9, got %f", eval.R2)
	}
}

func TestRandomForestNotTrained(t *testing.T) {
	forest := NewRandomForest(DefaultForestConfig(TaskClassification))
	if _, err := forest.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if _, err := forest.PredictClass([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := forest.Save(filepath.Join(t.TempDir(), "f.json")); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	features, labels := syntheticClassification(120, 5)
	forest := NewRandomForest(ForestConfig{Task: TaskClassification, NumTrees: 5, Seed: 42})
	if err := forest.Fit(features, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	path := filepath.Join(t.TempDir(), "forest.json")
	if err := forest.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	model, err := LoadModel("random_forest", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded, ok := model.(Classifier)
	if !ok {
		t.Fatal("loaded forest is not a classifier")
	}
	for _, x := range features[:20] {
		want, _ := forest.PredictClass(x)
		got, _ := loaded.PredictClass(x)
		if want != got {
			t.Fatal("loaded forest disagrees with original")
		}
	}
}

func TestTrainTestSplit(t *testing.T) {
	train, test := TrainTestSplit(10, 0.2, 42)
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("expected 8/2 split, got %d/%d", len(train), len(test))
	}
	seen := make(map[int]bool)
	for _, i := range append(train, test...) {
		if seen[i] {
			t.Fatalf("index %d appears twice", i)
		}
		seen[i] = true
	}

	again, _ := TrainTestSplit(10, 0.2, 42)
	for i := range train {
		if train[i] != again[i] {
			t.Fatal("split is not deterministic")
		}
	}

	train, test = TrainTestSplit(1, 0.2, 42)
	if len(train) != 1 || len(test) != 0 {
		t.Fatalf("single row must stay in train, got %d/%d", len(train), len(test))
	}
}

func TestRSquaredConstantTarget(t *testing.T) {
	if got := RSquared([]float64{2, 2, 2}, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for constant target, got %f", got)
	}
	if got := RSquared([]float64{1, 2, 3}, []float64{1, 2, 3}); got != 1 {
		t.Fatalf("expected 1 for perfect fit, got %f", got)
	}
}
