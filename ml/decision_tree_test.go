package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestDecisionTreeClassification(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []float64{0, 0, 1, 1}

	model := NewDecisionTree(TreeConfig{Task: TaskClassification, MaxDepth: 2})
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	positive, err := model.PredictClass([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if positive {
		t.Fatal("expected negative class")
	}
	p, err := model.Predict([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 1 {
		t.Fatalf("expected probability 1, got %f", p)
	}
}

func TestDecisionTreeRegression(t *testing.T) {
	var features [][]float64
	var targets []float64
	for i := 0; i < 40; i++ {
		x := float64(i)
		features = append(features, []float64{x})
		if x < 20 {
			targets = append(targets, 10)
		} else {
			targets = append(targets, 50)
		}
	}

	model := NewDecisionTree(TreeConfig{MaxDepth: 3})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	low, _ := model.Predict([]float64{3})
	high, _ := model.Predict([]float64{35})
	if math.Abs(low-10) > 1e-9 || math.Abs(high-50) > 1e-9 {
		t.Fatalf("expected 10 and 50, got %f and %f", low, high)
	}
}

func TestDecisionTreeDeepChildrenIndexes(t *testing.T) {
	var features [][]float64
	var targets []float64
	for i := 0; i < 64; i++ {
		features = append(features, []float64{float64(i)})
		targets = append(targets, float64(i))
	}
	model := NewDecisionTree(TreeConfig{MaxDepth: 6})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 64; i++ {
		got, err := model.Predict([]float64{float64(i)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-float64(i)) > 1e-9 {
			t.Fatalf("row %d predicted %f", i, got)
		}
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(TreeConfig{})
	if _, err := model.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := model.Fit(nil, nil); err == nil {
		t.Fatal("expected error for empty data")
	}
	if err := model.Fit([][]float64{{1}, {2, 3}}, []float64{1, 2}); !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("expected ErrFeatureMismatch, got %v", err)
	}
	if err := model.Fit([][]float64{{1}, {2}}, []float64{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("expected ErrFeatureMismatch, got %v", err)
	}
	if err := model.Fit([][]float64{{1}}, []float64{1}); !errors.Is(err, ErrAlreadyFitted) {
		t.Fatalf("expected ErrAlreadyFitted, got %v", err)
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	model := NewDecisionTree(TreeConfig{})
	if err := model.Fit([][]float64{{1}, {2}, {3}, {4}}, []float64{1, 1, 5, 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadModel("decision_tree", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, x := range []float64{1, 4} {
		want, _ := model.Predict([]float64{x})
		got, _ := loaded.Predict([]float64{x})
		if want != got {
			t.Fatalf("x=%v: want %v, got %v", x, want, got)
		}
	}

	if _, err := LoadModel("svm", path); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}
