package app

import (
	"fmt"

	"flightdash/monitoring"
	"flightdash/predictor"
)

// Alert rules raised from snapshot rebuilds.
const (
	ruleReloadFailed      = "reload_failed"
	ruleDatasetEmpty      = "dataset_empty"
	ruleRowsRejected      = "rows_rejected"
	ruleDelayModelSkipped = "delay_model_skipped"
	ruleModelScorePrefix  = "model_score_"
)

func (s *Service) raise(alert monitoring.Alert) {
	if s.opts.Alerts == nil {
		return
	}
	alert.Source = "app"
	s.opts.Alerts.Raise(alert)
}

func (s *Service) resolve(rule string) {
	if s.opts.Alerts != nil {
		s.opts.Alerts.Resolve(rule)
	}
}

func (s *Service) reportBuildFailure(trigger string, err error) {
	s.raise(monitoring.Alert{
		Rule:    ruleReloadFailed,
		Level:   monitoring.Error,
		Title:   "Snapshot rebuild failed",
		Message: fmt.Sprintf("%s reload failed, previous data still served: %v", trigger, err),
	})
}

// checkHealth raises or resolves every data and model rule for a freshly
// swapped snapshot.
func (s *Service) checkHealth(snap *Snapshot) {
	if s.opts.Alerts == nil {
		return
	}
	rules := s.opts.AlertRules

	if snap.Store.Len() == 0 {
		s.raise(monitoring.Alert{
			Rule:    ruleDatasetEmpty,
			Level:   monitoring.Critical,
			Title:   "Dataset is empty",
			Message: fmt.Sprintf("%s has no usable rows; predictions are unavailable", snap.Store.Source()),
		})
	} else {
		s.resolve(ruleDatasetEmpty)
	}

	stats := snap.Store.CleaningStats()
	if stats.TotalProcessed > 0 {
		ratio := float64(stats.Rejected) / float64(stats.TotalProcessed)
		if ratio > rules.MaxRejectedRatio {
			s.raise(monitoring.Alert{
				Rule:      ruleRowsRejected,
				Level:     monitoring.Warning,
				Title:     "Rows rejected while cleaning",
				Message:   fmt.Sprintf("%d of %d rows rejected", stats.Rejected, stats.TotalProcessed),
				Value:     ratio,
				Threshold: rules.MaxRejectedRatio,
			})
		} else {
			s.resolve(ruleRowsRejected)
		}
	}

	report := snap.Predictor.Report()
	if snap.Store.Len() > 0 && !report.DelayFitted {
		s.raise(monitoring.Alert{
			Rule:    ruleDelayModelSkipped,
			Level:   monitoring.Warning,
			Title:   "Delay model not trained",
			Message: report.DelaySkipReason,
		})
	} else {
		s.resolve(ruleDelayModelSkipped)
	}

	for _, target := range predictor.Targets() {
		rule := ruleModelScorePrefix + string(target)
		m, ok := report.Metrics[target]
		if !ok {
			s.resolve(rule)
			continue
		}
		threshold := rules.MinR2
		if m.Metric == "accuracy" {
			threshold = rules.MinAccuracy
		}
		if m.Score < threshold {
			s.raise(monitoring.Alert{
				Rule:      rule,
				Level:     monitoring.Warning,
				Title:     fmt.Sprintf("%s model scores low", target),
				Message:   fmt.Sprintf("held-out %s %.3f below %.3f", m.Metric, m.Score, threshold),
				Value:     m.Score,
				Threshold: threshold,
			})
		} else {
			s.resolve(rule)
		}
	}
}
