package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"flightdash/ml"
	"flightdash/models"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const (
	encodersFile = "encoders.json"
	manifestFile = "manifest.json"
)

type manifest struct {
	ModelType string             `json:"model_type"`
	Report    TrainingReport     `json:"report"`
	Dataset   datasetFingerprint `json:"dataset"`
}

// datasetFingerprint identifies the rows a bundle was trained on. Encoder
// codes follow first appearance, so row order is part of the digest.
type datasetFingerprint struct {
	Rows   int    `json:"rows"`
	Digest string `json:"digest"`
}

func fingerprint(records []models.FlightRecord) datasetFingerprint {
	d := xxhash.New()
	var buf []byte
	for i := range records {
		r := &records[i]
		f := FromFlight(r)
		for _, col := range categoricalColumns {
			d.WriteString(*f.categorical(col))
			d.WriteString("\x1f")
		}
		labels := []float64{r.DelayMinutes, r.SatisfactionScore, noShowLabel(r)}
		for _, col := range numericColumns {
			labels = append(labels, *f.numeric(col))
		}
		for _, v := range labels {
			buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
			d.Write(buf)
			d.WriteString("\x1f")
		}
		d.WriteString(string(r.Status))
		d.WriteString("\x1e")
	}
	return datasetFingerprint{Rows: len(records), Digest: strconv.FormatUint(d.Sum64(), 16)}
}

func modelFile(target Target) string {
	return string(target) + ".json"
}

// Save writes the encoders, every fitted model and a manifest into dir.
func (p *Predictor) Save(dir string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.trainCalled || !p.encoders.Fitted() {
		return errors.New("predictor not trained")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	payload, err := json.MarshalIndent(p.encoders, "", "  ")
	if err != nil {
		return fmt.Errorf("encode encoders: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, encodersFile), payload, 0o600); err != nil {
		return err
	}

	for target, model := range p.models() {
		if !model.Trained() {
			continue
		}
		if err := model.Save(filepath.Join(dir, modelFile(target))); err != nil {
			return fmt.Errorf("save %s model: %w", target, err)
		}
	}

	payload, err = json.MarshalIndent(manifest{ModelType: p.opts.ModelType, Report: p.report, Dataset: p.dataset}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), payload, 0o600)
}

func (p *Predictor) models() map[Target]ml.Model {
	return map[Target]ml.Model{
		TargetDelay:        p.delay,
		TargetSatisfaction: p.satisfaction,
		TargetNoShow:       p.noShow,
	}
}

// Load restores a predictor saved with Save. The result counts as trained:
// TrainAll on it returns ErrAlreadyTrained. A bundle trained on rows other
// than source's fails with ErrBundleMismatch.
func Load(dir string, source Source, opts Options) (*Predictor, error) {
	p := New(source, opts)

	payload, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	current := fingerprint(source.Records())
	if m.Dataset != current {
		return nil, fmt.Errorf("%w: bundle has %d rows (%s), dataset has %d rows (%s)",
			ErrBundleMismatch, m.Dataset.Rows, m.Dataset.Digest, current.Rows, current.Digest)
	}

	payload, err = os.ReadFile(filepath.Join(dir, encodersFile))
	if err != nil {
		return nil, fmt.Errorf("read encoders: %w", err)
	}
	encoders := &ml.EncoderSet{}
	if err := json.Unmarshal(payload, encoders); err != nil {
		return nil, fmt.Errorf("decode encoders: %w", err)
	}
	p.encoders = encoders

	for _, target := range Targets() {
		if !m.Report.Fitted(target) {
			continue
		}
		model, err := ml.LoadModel(m.ModelType, filepath.Join(dir, modelFile(target)))
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", target, err)
		}
		switch target {
		case TargetDelay:
			p.delay = model
		case TargetSatisfaction:
			p.satisfaction = model
		case TargetNoShow:
			clf, ok := model.(ml.Classifier)
			if !ok {
				return nil, fmt.Errorf("%s model is not a classifier", target)
			}
			p.noShow = clf
		}
	}

	p.opts.ModelType = m.ModelType
	p.report = m.Report
	p.dataset = m.Dataset
	p.trainCalled = true
	p.logger.Info("loaded model bundle", zap.String("dir", dir), zap.Bool("delay_fitted", m.Report.DelayFitted))
	return p, nil
}
