package predictor

import (
	"errors"
	"fmt"

	"flightdash/ml"
)

var (
	ErrAlreadyTrained = errors.New("predictor already trained")
	ErrEmptyDataset   = errors.New("training dataset is empty")
	ErrBundleMismatch = errors.New("model bundle was trained on a different dataset")
)

// ModelNotTrainedError is returned by a prediction whose model was never
// fitted, either because TrainAll has not run or because training was
// skipped for lack of data.
type ModelNotTrainedError struct {
	Target Target
}

func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("%s model not trained", e.Target)
}

func (e *ModelNotTrainedError) Kind() string {
	return "model_not_trained"
}

// MissingFeatureError reports a feature that is absent or unusable.
type MissingFeatureError struct {
	Field  string
	Reason string
}

func (e *MissingFeatureError) Error() string {
	if e.Reason == "" {
		return "missing feature " + e.Field
	}
	return fmt.Sprintf("invalid feature %s: %s", e.Field, e.Reason)
}

func (e *MissingFeatureError) Kind() string {
	return "missing_feature"
}

// UnknownCategoryError is returned when a categorical value was not seen
// while fitting the encoders.
type UnknownCategoryError = ml.UnknownCategoryError
