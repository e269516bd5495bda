package predictor

import (
	"fmt"

	"flightdash/ml"
	"flightdash/models"
)

// fitEncoders fits every categorical encoder once, over all rows in store
// order, so the three models share one set of codes.
func fitEncoders(enc *ml.EncoderSet, records []models.FlightRecord) error {
	for _, col := range categoricalColumns {
		values := make([]string, len(records))
		for i := range records {
			f := FromFlight(&records[i])
			values[i] = *f.categorical(col)
		}
		if err := enc.Fit(col, values); err != nil {
			return err
		}
	}
	return nil
}

// buildTrainingSet encodes the rows accepted by keep and pairs them with the
// target extracted by label.
func buildTrainingSet(enc *ml.EncoderSet, records []models.FlightRecord,
	keep func(*models.FlightRecord) bool, label func(*models.FlightRecord) float64) ([][]float64, []float64, error) {

	features := make([][]float64, 0, len(records))
	targets := make([]float64, 0, len(records))
	for i := range records {
		r := &records[i]
		if keep != nil && !keep(r) {
			continue
		}
		f := FromFlight(r)
		if err := f.Validate(); err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		x, err := f.Vector(enc)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		features = append(features, x)
		targets = append(targets, label(r))
	}
	return features, targets, nil
}

func delayedOnly(r *models.FlightRecord) bool {
	return r.Status == models.StatusDelayed
}

func delayLabel(r *models.FlightRecord) float64 {
	return r.DelayMinutes
}

func satisfactionLabel(r *models.FlightRecord) float64 {
	return r.SatisfactionScore
}

func noShowLabel(r *models.FlightRecord) float64 {
	if r.NoShow {
		return 1
	}
	return 0
}
