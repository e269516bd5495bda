package predictor

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"flightdash/ml"
	"flightdash/models"

	"go.uber.org/zap"
)

// Source supplies the training rows. *store.Store satisfies it.
type Source interface {
	Records() []models.FlightRecord
}

type Options struct {
	ModelType      string // ml.RandomForestModel (default) or ml.DecisionTreeModel
	NumTrees       int
	MaxDepth       int
	TestRatio      float64
	Seed           int64
	MinDelayedRows int
	Workers        int
	Logger         *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		ModelType:      ml.RandomForestModel,
		NumTrees:       100,
		MaxDepth:       10,
		TestRatio:      0.2,
		Seed:           42,
		MinDelayedRows: 100,
		Workers:        runtime.NumCPU(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ModelType == "" {
		o.ModelType = d.ModelType
	}
	if o.NumTrees <= 0 {
		o.NumTrees = d.NumTrees
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.TestRatio <= 0 || o.TestRatio >= 1 {
		o.TestRatio = d.TestRatio
	}
	if o.MinDelayedRows <= 0 {
		o.MinDelayedRows = d.MinDelayedRows
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Predictor owns the shared encoders and the delay, satisfaction and
// no-show models. It is trained at most once; after that it only serves
// reads.
type Predictor struct {
	source Source
	opts   Options
	logger *zap.Logger

	mu           sync.RWMutex
	encoders     *ml.EncoderSet
	delay        ml.Model
	satisfaction ml.Model
	noShow       ml.Classifier
	report       TrainingReport
	dataset      datasetFingerprint
	trainCalled  bool
}

// New returns an untrained predictor over source.
func New(source Source, opts Options) *Predictor {
	opts = opts.withDefaults()
	return &Predictor{
		source:       source,
		opts:         opts,
		logger:       opts.Logger.Named("predictor"),
		encoders:     ml.NewEncoderSet(categoricalColumns...),
		delay:        ml.NewRandomForest(opts.forest(ml.TaskRegression)),
		satisfaction: ml.NewRandomForest(opts.forest(ml.TaskRegression)),
		noShow:       ml.NewRandomForest(opts.forest(ml.TaskClassification)),
	}
}

func (o Options) forest(task ml.Task) ml.ForestConfig {
	cfg := ml.DefaultForestConfig(task)
	cfg.NumTrees = o.NumTrees
	cfg.MaxDepth = o.MaxDepth
	cfg.Seed = o.Seed
	cfg.Workers = o.Workers
	return cfg
}

// TrainAll fits the encoders and the three models. The delay model only
// sees delayed flights and is skipped, not failed, when there are fewer
// than MinDelayedRows of them. Nothing is published unless every fit
// succeeds, so a failed run can be retried.
func (p *Predictor) TrainAll() (TrainingReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.trainCalled {
		return p.report, ErrAlreadyTrained
	}
	records := p.source.Records()
	if len(records) == 0 {
		return TrainingReport{}, ErrEmptyDataset
	}

	start := time.Now()
	p.logger.Info("training models",
		zap.Int("rows", len(records)),
		zap.String("model_type", p.opts.ModelType),
		zap.Int("trees", p.opts.NumTrees),
	)

	encoders := ml.NewEncoderSet(categoricalColumns...)
	if err := fitEncoders(encoders, records); err != nil {
		return TrainingReport{}, fmt.Errorf("fit encoders: %w", err)
	}
	delay, err := ml.NewModel(p.opts.ModelType, p.opts.forest(ml.TaskRegression))
	if err != nil {
		return TrainingReport{}, err
	}
	satisfaction, _ := ml.NewModel(p.opts.ModelType, p.opts.forest(ml.TaskRegression))
	noShow, _ := ml.NewModel(p.opts.ModelType, p.opts.forest(ml.TaskClassification))

	report := TrainingReport{
		Rows:    len(records),
		Metrics: make(map[Target]ModelMetrics),
	}

	xDelay, yDelay, err := buildTrainingSet(encoders, records, delayedOnly, delayLabel)
	if err != nil {
		return TrainingReport{}, err
	}
	report.DelayedRows = len(xDelay)
	if len(xDelay) < p.opts.MinDelayedRows {
		report.DelaySkipReason = fmt.Sprintf("only %d delayed flights, need %d", len(xDelay), p.opts.MinDelayedRows)
		p.logger.Warn("skipping delay model", zap.String("reason", report.DelaySkipReason))
	} else {
		m, err := p.fit(TargetDelay, delay, ml.TaskRegression, xDelay, yDelay)
		if err != nil {
			return TrainingReport{}, err
		}
		report.Metrics[TargetDelay] = m
		report.DelayFitted = true
	}

	xAll, ySatisfaction, err := buildTrainingSet(encoders, records, nil, satisfactionLabel)
	if err != nil {
		return TrainingReport{}, err
	}
	m, err := p.fit(TargetSatisfaction, satisfaction, ml.TaskRegression, xAll, ySatisfaction)
	if err != nil {
		return TrainingReport{}, err
	}
	report.Metrics[TargetSatisfaction] = m
	report.SatisfactionFitted = true

	yNoShow := make([]float64, len(records))
	for i := range records {
		yNoShow[i] = noShowLabel(&records[i])
	}
	m, err = p.fit(TargetNoShow, noShow, ml.TaskClassification, xAll, yNoShow)
	if err != nil {
		return TrainingReport{}, err
	}
	report.Metrics[TargetNoShow] = m
	report.NoShowFitted = true

	report.TrainedAt = time.Now()
	report.Duration = time.Since(start)

	p.encoders = encoders
	p.delay = delay
	p.satisfaction = satisfaction
	p.noShow = noShow
	p.report = report
	p.dataset = fingerprint(records)
	p.trainCalled = true

	p.logger.Info("training finished",
		zap.Bool("delay_fitted", report.DelayFitted),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Predictor) fit(target Target, model ml.Model, task ml.Task, features [][]float64, targets []float64) (ModelMetrics, error) {
	train, test := ml.TrainTestSplit(len(features), p.opts.TestRatio, p.opts.Seed)
	xTrain, yTrain := ml.Subset(features, targets, train)
	xTest, yTest := ml.Subset(features, targets, test)

	if err := model.Fit(xTrain, yTrain); err != nil {
		return ModelMetrics{}, fmt.Errorf("train %s model: %w", target, err)
	}
	eval, err := ml.Evaluate(model, task, xTest, yTest)
	if err != nil {
		return ModelMetrics{}, fmt.Errorf("evaluate %s model: %w", target, err)
	}

	metrics := ModelMetrics{TrainRows: len(train), TestRows: len(test)}
	if task == ml.TaskClassification {
		metrics.Metric = "accuracy"
		metrics.Score = round(eval.Accuracy, 4)
	} else {
		metrics.Metric = "r2"
		metrics.Score = round(eval.R2, 4)
		metrics.MAE = round(eval.MAE, 4)
	}
	p.logger.Info("model trained",
		zap.String("target", string(target)),
		zap.String("metric", metrics.Metric),
		zap.Float64("score", metrics.Score),
		zap.Int("train_rows", metrics.TrainRows),
	)
	return metrics, nil
}

func (p *Predictor) vector(target Target, model ml.Model, rec FeatureRecord) ([]float64, error) {
	if !model.Trained() {
		return nil, &ModelNotTrainedError{Target: target}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec.Vector(p.encoders)
}

// PredictDelay returns the expected delay, never negative, rounded to one
// decimal.
func (p *Predictor) PredictDelay(rec FeatureRecord) (DelayPrediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	x, err := p.vector(TargetDelay, p.delay, rec)
	if err != nil {
		return DelayPrediction{}, err
	}
	raw, err := p.delay.Predict(x)
	if err != nil {
		return DelayPrediction{}, err
	}
	minutes := math.Max(0, raw)
	return DelayPrediction{
		Minutes:  round(minutes, 1),
		Category: DelayCategoryFor(minutes),
	}, nil
}

// PredictSatisfaction returns a score clamped to [0,10], rounded to two
// decimals.
func (p *Predictor) PredictSatisfaction(rec FeatureRecord) (SatisfactionPrediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	x, err := p.vector(TargetSatisfaction, p.satisfaction, rec)
	if err != nil {
		return SatisfactionPrediction{}, err
	}
	raw, err := p.satisfaction.Predict(x)
	if err != nil {
		return SatisfactionPrediction{}, err
	}
	score := clamp(raw, 0, 10)
	return SatisfactionPrediction{
		Score: round(score, 2),
		Level: SatisfactionLevelFor(score),
	}, nil
}

// PredictNoShow returns the majority vote and the positive-class probability
// as a percentage. Risk is bucketed on the probability alone.
func (p *Predictor) PredictNoShow(rec FeatureRecord) (NoShowPrediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	x, err := p.vector(TargetNoShow, p.noShow, rec)
	if err != nil {
		return NoShowPrediction{}, err
	}
	decision, err := p.noShow.PredictClass(x)
	if err != nil {
		return NoShowPrediction{}, err
	}
	probability, err := p.noShow.Predict(x)
	if err != nil {
		return NoShowPrediction{}, err
	}
	probability = clamp(probability, 0, 1)
	return NoShowPrediction{
		WillNoShow:         decision,
		ProbabilityPercent: round(probability*100, 2),
		RiskLevel:          RiskLevelFor(probability),
	}, nil
}

// Report returns the result of the last training run.
func (p *Predictor) Report() TrainingReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report
}

// Trained reports whether TrainAll completed or a bundle was loaded.
func (p *Predictor) Trained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trainCalled && p.encoders.Fitted()
}

// Encoders exposes the fitted encoders for decoding.
func (p *Predictor) Encoders() *ml.EncoderSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.encoders
}
