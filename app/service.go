package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flightdash/config"
	"flightdash/db"
	"flightdash/monitoring"
	"flightdash/pipeline"
	"flightdash/predictor"
	"flightdash/store"
)

// Reload triggers.
const (
	TriggerStartup  = "startup"
	TriggerWatch    = "fsnotify"
	TriggerSchedule = "cron"
	TriggerAdmin    = "admin"
)

// ErrNotReady is returned before the first snapshot has been built.
var ErrNotReady = errors.New("dashboard data not loaded yet")

// Recorder persists training runs, cleaning findings and the prediction
// audit trail. *db.DB satisfies it.
type Recorder interface {
	SaveTrainingReport(ctx context.Context, runID string, report predictor.TrainingReport) error
	SaveQualityIssues(ctx context.Context, source string, issues []pipeline.QualityIssue) error
	LogPrediction(ctx context.Context, p db.PredictionLog) error
	RecentTrainingLogs(ctx context.Context, limit int) ([]db.TrainingLog, error)
	CountPredictions(ctx context.Context, target predictor.Target) (int, error)
	QualityIssueCounts(ctx context.Context, source string) (map[string]int, error)
}

// Notifier pushes updates to connected dashboards. *monitoring.Hub
// satisfies it.
type Notifier interface {
	Broadcast(kind monitoring.MessageType, data interface{}) error
}

type Options struct {
	Dataset   config.DatasetConfig
	ML        config.MLConfig
	CacheSize int

	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Recorder Recorder
	Notifier Notifier

	// Alerts receives snapshot health findings; nil disables the rules.
	Alerts     *monitoring.AlertSystem
	AlertRules config.AlertConfig
}

// Service owns the current snapshot. Readers take the pointer once per
// request; rebuilds happen off to the side and are swapped in atomically.
type Service struct {
	opts   Options
	logger *zap.Logger

	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		opts:   opts,
		logger: opts.Logger.Named("app"),
	}
}

// Current returns the live snapshot, or nil before Bootstrap.
func (s *Service) Current() *Snapshot {
	return s.current.Load()
}

// Snapshot is Current with ErrNotReady instead of nil.
func (s *Service) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

// Bootstrap builds the first snapshot. A saved model bundle is reused when
// ml.load_existing is set.
func (s *Service) Bootstrap(ctx context.Context) error {
	return s.rebuild(ctx, TriggerStartup, s.opts.ML.LoadExisting)
}

// Reload reloads the dataset and retrains from scratch. On failure the
// previous snapshot stays live.
func (s *Service) Reload(ctx context.Context, trigger string) error {
	return s.rebuild(ctx, trigger, false)
}

func (s *Service) rebuild(ctx context.Context, trigger string, reuseBundle bool) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	snap, err := s.build(ctx, trigger, reuseBundle)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordReload(trigger, err)
	}
	if err != nil {
		s.logger.Error("snapshot build failed", zap.String("trigger", trigger), zap.Error(err))
		s.reportBuildFailure(trigger, err)
		return err
	}
	s.resolve(ruleReloadFailed)

	prev := s.current.Swap(snap)
	fields := []zap.Field{
		zap.String("snapshot", snap.ID),
		zap.String("trigger", trigger),
		zap.Int("rows", snap.Store.Len()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if prev != nil {
		fields = append(fields, zap.String("replaced", prev.ID))
	}
	s.logger.Info("snapshot swapped", fields...)

	if s.opts.Metrics != nil {
		s.opts.Metrics.SetDatasetRows(snap.Store.Len())
	}
	s.notify(snap)
	s.checkHealth(snap)
	return nil
}

func (s *Service) build(ctx context.Context, trigger string, reuseBundle bool) (*Snapshot, error) {
	st, err := store.Load(s.opts.Dataset.Path, pipeline.LoadOptions{
		Encoding: s.opts.Dataset.Encoding,
		Logger:   s.opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	id := uuid.NewString()
	popts := PredictorOptions(s.opts.ML, s.opts.Logger)

	var p *predictor.Predictor
	if reuseBundle && s.opts.ML.ModelDir != "" {
		p, err = predictor.Load(s.opts.ML.ModelDir, st, popts)
		if err != nil {
			s.logger.Warn("model bundle unavailable, training instead", zap.String("dir", s.opts.ML.ModelDir), zap.Error(err))
			p = nil
		}
	}
	if p == nil {
		p, err = s.train(ctx, id, st, popts)
		if err != nil {
			return nil, err
		}
	}

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.SaveQualityIssues(ctx, st.Source(), st.Issues()); err != nil {
			s.logger.Warn("save quality issues failed", zap.Error(err))
		}
	}
	return newSnapshot(id, st, p, trigger, s.opts.CacheSize)
}

func (s *Service) train(ctx context.Context, runID string, st *store.Store, popts predictor.Options) (*predictor.Predictor, error) {
	p := predictor.New(st, popts)

	start := time.Now()
	report, err := p.TrainAll()
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordTraining(time.Since(start), err)
	}
	switch {
	case errors.Is(err, predictor.ErrEmptyDataset):
		// serve the empty dashboard; every prediction reports model_not_trained
		s.logger.Warn("dataset is empty, models not trained", zap.String("source", st.Source()))
		return p, nil
	case err != nil:
		return nil, fmt.Errorf("train models: %w", err)
	}

	if s.opts.Metrics != nil {
		for target, m := range report.Metrics {
			s.opts.Metrics.SetModelScore(string(target), m.Metric, m.Score)
		}
	}
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.SaveTrainingReport(ctx, runID, report); err != nil {
			s.logger.Warn("save training log failed", zap.Error(err))
		}
	}
	if s.opts.ML.SaveAfterTrain && s.opts.ML.ModelDir != "" {
		if err := p.Save(s.opts.ML.ModelDir); err != nil {
			s.logger.Warn("save model bundle failed", zap.String("dir", s.opts.ML.ModelDir), zap.Error(err))
		}
	}
	return p, nil
}

func (s *Service) notify(snap *Snapshot) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Broadcast(monitoring.KPIUpdate, snap.Store.SummaryStats()); err != nil {
		s.logger.Debug("kpi broadcast dropped", zap.Error(err))
	}
	if err := s.opts.Notifier.Broadcast(monitoring.ModelUpdate, snap.Status()); err != nil {
		s.logger.Debug("model broadcast dropped", zap.Error(err))
	}
}

// PredictorOptions maps the ml config section onto predictor options.
func PredictorOptions(cfg config.MLConfig, logger *zap.Logger) predictor.Options {
	return predictor.Options{
		ModelType:      cfg.ModelType,
		NumTrees:       cfg.NumTrees,
		MaxDepth:       cfg.MaxDepth,
		TestRatio:      cfg.TestRatio,
		Seed:           cfg.Seed,
		MinDelayedRows: cfg.MinDelayedRows,
		Workers:        cfg.Workers,
		Logger:         logger,
	}
}

// PredictionCounts returns how many predictions were audited per target.
func (s *Service) PredictionCounts(ctx context.Context) (map[predictor.Target]int, error) {
	counts := make(map[predictor.Target]int)
	if s.opts.Recorder == nil {
		return counts, nil
	}
	for _, target := range predictor.Targets() {
		n, err := s.opts.Recorder.CountPredictions(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("count %s predictions: %w", target, err)
		}
		counts[target] = n
	}
	return counts, nil
}

// StoredIssueCounts returns the persisted cleaning findings of source by
// issue type.
func (s *Service) StoredIssueCounts(ctx context.Context, source string) (map[string]int, error) {
	if s.opts.Recorder == nil {
		return map[string]int{}, nil
	}
	return s.opts.Recorder.QualityIssueCounts(ctx, source)
}

// TrainingHistory returns recent training log entries, newest first.
func (s *Service) TrainingHistory(ctx context.Context, limit int) ([]db.TrainingLog, error) {
	if s.opts.Recorder == nil {
		return []db.TrainingLog{}, nil
	}
	return s.opts.Recorder.RecentTrainingLogs(ctx, limit)
}
