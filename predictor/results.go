package predictor

import (
	"math"
	"time"
)

type Target string

const (
	TargetDelay        Target = "delay"
	TargetSatisfaction Target = "satisfaction"
	TargetNoShow       Target = "noshow"
)

// Targets lists the three models in training order.
func Targets() []Target {
	return []Target{TargetDelay, TargetSatisfaction, TargetNoShow}
}

type DelayPrediction struct {
	Minutes  float64 `json:"predicted_delay_minutes"`
	Category string  `json:"delay_category"`
}

type SatisfactionPrediction struct {
	Score float64 `json:"predicted_satisfaction"`
	Level string  `json:"satisfaction_level"`
}

// NoShowPrediction carries the forest's vote and its mean probability. The
// two are computed independently and may disagree.
type NoShowPrediction struct {
	WillNoShow         bool    `json:"will_noshow"`
	ProbabilityPercent float64 `json:"noshow_probability"`
	RiskLevel          string  `json:"risk_level"`
}

// ModelMetrics is the held-out evaluation of one model.
type ModelMetrics struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	Metric    string  `json:"metric"`
	Score     float64 `json:"score"`
	MAE       float64 `json:"mae,omitempty"`
}

type TrainingReport struct {
	DelayFitted        bool                    `json:"delay_fitted"`
	SatisfactionFitted bool                    `json:"satisfaction_fitted"`
	NoShowFitted       bool                    `json:"noshow_fitted"`
	DelaySkipReason    string                  `json:"delay_skip_reason,omitempty"`
	Rows               int                     `json:"rows"`
	DelayedRows        int                     `json:"delayed_rows"`
	Metrics            map[Target]ModelMetrics `json:"metrics"`
	TrainedAt          time.Time               `json:"trained_at"`
	Duration           time.Duration           `json:"duration_ns"`
}

// Fitted reports whether the model for target was trained.
func (r TrainingReport) Fitted(target Target) bool {
	switch target {
	case TargetDelay:
		return r.DelayFitted
	case TargetSatisfaction:
		return r.SatisfactionFitted
	case TargetNoShow:
		return r.NoShowFitted
	}
	return false
}

// DelayCategoryFor buckets minutes: Short below 30, Medium below 60, Long
// otherwise.
func DelayCategoryFor(minutes float64) string {
	switch {
	case minutes < 30:
		return "Short"
	case minutes < 60:
		return "Medium"
	default:
		return "Long"
	}
}

// SatisfactionLevelFor buckets a 0-10 score: Low below 4, Medium below 7.
func SatisfactionLevelFor(score float64) string {
	switch {
	case score < 4:
		return "Low"
	case score < 7:
		return "Medium"
	default:
		return "High"
	}
}

// RiskLevelFor buckets a probability in [0,1]: Low below 0.3, Medium below
// 0.6.
func RiskLevelFor(probability float64) string {
	switch {
	case probability < 0.3:
		return "Low"
	case probability < 0.6:
		return "Medium"
	default:
		return "High"
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
