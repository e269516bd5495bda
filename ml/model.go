package ml

import "errors"

var (
	ErrNotTrained      = errors.New("model not trained")
	ErrAlreadyFitted   = errors.New("model already fitted")
	ErrFeatureMismatch = errors.New("feature vector length mismatch")
)

type Task string

const (
	TaskRegression     Task = "regression"
	TaskClassification Task = "classification"
)

type Model interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	Trained() bool
	Save(path string) error
	Load(path string) error
}

// Classifier is a Model over 0/1 targets. Predict returns the positive
// probability; PredictClass returns the hard decision.
type Classifier interface {
	Model
	PredictClass(features []float64) (bool, error)
}
