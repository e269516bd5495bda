package predictor

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"flightdash/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatureRecord(t *testing.T) {
	m := sampleFeatures().Map()
	m[models.ColAge] = "41"
	m[models.ColPrice] = json.Number("199.5")
	m[models.ColWeatherImpact] = true
	m["Passenger_ID"] = "ignored"

	rec, err := ParseFeatureRecord(m)
	require.NoError(t, err)
	assert.Equal(t, 41.0, rec.Age)
	assert.Equal(t, 199.5, rec.PriceUSD)
	assert.Equal(t, 1.0, rec.WeatherImpact)
	assert.Equal(t, "Delta", rec.Airline)
}

func TestParseFeatureRecordErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		field  string
	}{
		{"missing categorical", func(m map[string]interface{}) { delete(m, models.ColSeatClass) }, models.ColSeatClass},
		{"missing numeric", func(m map[string]interface{}) { delete(m, models.ColAge) }, models.ColAge},
		{"null value", func(m map[string]interface{}) { m[models.ColGender] = nil }, models.ColGender},
		{"number for categorical", func(m map[string]interface{}) { m[models.ColAirline] = 3.0 }, models.ColAirline},
		{"non numeric string", func(m map[string]interface{}) { m[models.ColPrice] = "cheap" }, models.ColPrice},
		{"bool for numeric", func(m map[string]interface{}) { m[models.ColBagsChecked] = true }, models.ColBagsChecked},
		{"blank categorical", func(m map[string]interface{}) { m[models.ColIncomeLevel] = "  " }, models.ColIncomeLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleFeatures().Map()
			tt.mutate(m)
			_, err := ParseFeatureRecord(m)

			var missing *MissingFeatureError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, tt.field, missing.Field)
			assert.Equal(t, "missing_feature", missing.Kind())
		})
	}
}

func TestValidateRejectsNonFinite(t *testing.T) {
	rec := sampleFeatures()
	rec.DistanceMiles = math.Inf(1)

	var missing *MissingFeatureError
	require.True(t, errors.As(rec.Validate(), &missing))
	assert.Equal(t, models.ColDistance, missing.Field)
}

func TestVectorOrder(t *testing.T) {
	src := synthetic(30, 0)
	p := New(src, fastOptions())
	require.NoError(t, fitEncoders(p.encoders, src))

	rec := FromFlight(&src[0])
	x, err := rec.Vector(p.encoders)
	require.NoError(t, err)
	require.Len(t, x, len(CategoricalColumns())+len(NumericColumns()))

	for i := range CategoricalColumns() {
		assert.Equal(t, 0.0, x[i], "first row gets code 0 in every column")
	}
	tail := x[len(CategoricalColumns()):]
	assert.Equal(t, src[0].DurationMinutes, tail[0])
	assert.Equal(t, src[0].WeatherImpact, tail[len(tail)-1])
}
