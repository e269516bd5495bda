package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"flightdash/db"
	"flightdash/predictor"
)

type kinded interface {
	Kind() string
}

func (s *Service) PredictDelay(ctx context.Context, rec predictor.FeatureRecord) (predictor.DelayPrediction, error) {
	return predict(ctx, s, predictor.TargetDelay, rec, (*predictor.Predictor).PredictDelay)
}

func (s *Service) PredictSatisfaction(ctx context.Context, rec predictor.FeatureRecord) (predictor.SatisfactionPrediction, error) {
	return predict(ctx, s, predictor.TargetSatisfaction, rec, (*predictor.Predictor).PredictSatisfaction)
}

func (s *Service) PredictNoShow(ctx context.Context, rec predictor.FeatureRecord) (predictor.NoShowPrediction, error) {
	return predict(ctx, s, predictor.TargetNoShow, rec, (*predictor.Predictor).PredictNoShow)
}

// predict runs fn against the live snapshot, consulting its cache first.
// Every served prediction is audited; failures are only counted.
func predict[T any](ctx context.Context, s *Service, target predictor.Target, rec predictor.FeatureRecord,
	fn func(*predictor.Predictor, predictor.FeatureRecord) (T, error)) (T, error) {

	var zero T
	snap, err := s.Snapshot()
	if err != nil {
		return zero, err
	}

	key := cacheKey(target, rec)
	res, hit, err := lookup(snap, key, rec, fn)
	s.recordCache(hit)
	if err != nil {
		outcome := "error"
		var k kinded
		if errors.As(err, &k) {
			outcome = k.Kind()
		}
		s.recordOutcome(target, outcome)
		return zero, err
	}
	s.recordOutcome(target, "ok")

	if s.opts.Recorder != nil {
		err := s.opts.Recorder.LogPrediction(ctx, db.PredictionLog{
			SnapshotID: snap.ID,
			Target:     target,
			Features:   rec,
			Result:     res,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			s.logger.Warn("prediction audit failed", zap.String("target", string(target)), zap.Error(err))
		}
	}
	return res, nil
}

func lookup[T any](snap *Snapshot, key string, rec predictor.FeatureRecord,
	fn func(*predictor.Predictor, predictor.FeatureRecord) (T, error)) (T, bool, error) {

	if v, ok := snap.cached(key); ok {
		if res, ok := v.(T); ok {
			return res, true, nil
		}
	}
	res, err := fn(snap.Predictor, rec)
	if err != nil {
		return res, false, err
	}
	snap.remember(key, res)
	return res, false, nil
}

func (s *Service) recordCache(hit bool) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordCache(hit)
	}
}

func (s *Service) recordOutcome(target predictor.Target, outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordPrediction(string(target), outcome)
	}
}
