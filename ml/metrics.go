package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

type Evaluation struct {
	Samples  int     `json:"samples"`
	R2       float64 `json:"r2"`
	MAE      float64 `json:"mae"`
	Accuracy float64 `json:"accuracy"`
}

// RSquared is the coefficient of determination. A constant target has no
// variance to explain and scores 0.
func RSquared(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	if stat.Variance(actual, nil) == 0 {
		return 0
	}
	return finite(stat.RSquaredFrom(predicted, actual, nil))
}

func MeanAbsoluteError(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	errs := make([]float64, len(actual))
	for i := range actual {
		errs[i] = math.Abs(actual[i] - predicted[i])
	}
	return finite(stat.Mean(errs, nil))
}

func Accuracy(actual []float64, predicted []bool) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	correct := 0
	for i := range actual {
		if (actual[i] >= 0.5) == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

// Evaluate scores a trained model on a held-out set. Regressions get R² and
// MAE; classifiers get accuracy from PredictClass.
func Evaluate(model Model, task Task, features [][]float64, targets []float64) (Evaluation, error) {
	eval := Evaluation{Samples: len(features)}
	if len(features) == 0 {
		return eval, nil
	}

	switch task {
	case TaskClassification:
		clf, ok := model.(Classifier)
		if !ok {
			return eval, errors.New("model does not support classification")
		}
		predicted := make([]bool, len(features))
		for i, x := range features {
			p, err := clf.PredictClass(x)
			if err != nil {
				return eval, err
			}
			predicted[i] = p
		}
		eval.Accuracy = Accuracy(targets, predicted)
	default:
		predicted := make([]float64, len(features))
		for i, x := range features {
			p, err := model.Predict(x)
			if err != nil {
				return eval, err
			}
			predicted[i] = p
		}
		eval.R2 = RSquared(targets, predicted)
		eval.MAE = MeanAbsoluteError(targets, predicted)
	}
	return eval, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
