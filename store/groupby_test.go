package store

import (
	"testing"
	"time"

	"flightdash/models"
	"flightdash/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeStore() *Store {
	var records []models.FlightRecord
	add := func(from, to string, n int, opts ...recOpt) {
		for i := 0; i < n; i++ {
			records = append(records, rec("Delta", from, to, models.StatusOnTime, opts...))
		}
	}
	add("BOS", "MIA", 5)
	add("JFK", "LAX", 3)
	add("SEA", "DEN", 5)
	add("ORD", "SFO", 7, withPrice(300))
	return New(records, pipeline.CleaningStats{})
}

func TestGroupByFirstEncounterOrder(t *testing.T) {
	rows, err := routeStore().GroupBy(
		[]string{models.ColDepartureAirport, models.ColArrivalAirport},
		[]Aggregation{{Column: models.ColFlightID, Func: AggCount, Alias: "flights"}},
	)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"BOS", "MIA"}, rows[0].Keys)
	assert.Equal(t, []string{"ORD", "SFO"}, rows[3].Keys)
	assert.Equal(t, 7.0, rows[3].Value("flights"))
}

func TestGroupByAggregations(t *testing.T) {
	s := New([]models.FlightRecord{
		rec("Delta", "JFK", "LAX", models.StatusOnTime, withPrice(100)),
		rec("Delta", "JFK", "LAX", models.StatusOnTime, withPrice(300)),
		rec("United", "JFK", "LAX", models.StatusOnTime, withPrice(50)),
	}, pipeline.CleaningStats{})

	rows, err := s.GroupBy([]string{models.ColAirline}, []Aggregation{
		{Column: models.ColPrice, Func: AggSum},
		{Column: models.ColPrice, Func: AggMean},
		{Column: models.ColPrice, Func: AggMin},
		{Column: models.ColPrice, Func: AggMax},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	delta := rows[0]
	assert.Equal(t, 2, delta.Count)
	assert.Equal(t, 400.0, delta.Value("Price_USD_sum"))
	assert.Equal(t, 200.0, delta.Value("Price_USD_mean"))
	assert.Equal(t, 100.0, delta.Value("Price_USD_min"))
	assert.Equal(t, 300.0, delta.Value("Price_USD_max"))
}

func TestGroupByRejectsUnknownColumns(t *testing.T) {
	s := routeStore()
	tests := []struct {
		name string
		keys []string
		aggs []Aggregation
	}{
		{"unknown key", []string{"Cabin"}, nil},
		{"numeric key", []string{models.ColPrice}, nil},
		{"non numeric mean", []string{models.ColAirline}, []Aggregation{{Column: models.ColAirline, Func: AggMean}}},
		{"unknown func", []string{models.ColAirline}, []Aggregation{{Column: models.ColPrice, Func: "median"}}},
		{"duplicate alias", []string{models.ColAirline}, []Aggregation{
			{Column: models.ColPrice, Func: AggSum, Alias: "x"},
			{Column: models.ColAge, Func: AggSum, Alias: "x"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.GroupBy(tt.keys, tt.aggs)
			assert.Error(t, err)
		})
	}
}

func TestTopRoutesTieBreakStable(t *testing.T) {
	s := routeStore()
	for i := 0; i < 5; i++ {
		routes := s.TopRoutes(10)
		require.Len(t, routes, 4)
		assert.Equal(t, "ORD → SFO", routes[0].Route)
		assert.Equal(t, "BOS → MIA", routes[1].Route, "tied routes keep encounter order")
		assert.Equal(t, "SEA → DEN", routes[2].Route)
		assert.Equal(t, "JFK → LAX", routes[3].Route)
		assert.Equal(t, 300.0, routes[0].AvgPrice)
	}
	assert.Len(t, s.TopRoutes(2), 2)
}

func TestTopN(t *testing.T) {
	rows := []GroupRow{
		{Keys: []string{"a"}, Count: 1, Values: map[string]float64{"v": 2}},
		{Keys: []string{"b"}, Count: 3, Values: map[string]float64{"v": 2}},
		{Keys: []string{"c"}, Count: 2, Values: map[string]float64{"v": 5}},
	}
	byV := TopN(rows, "v", 0)
	assert.Equal(t, "c", byV[0].Keys[0])
	assert.Equal(t, "a", byV[1].Keys[0])
	assert.Equal(t, "b", byV[2].Keys[0])

	byCount := TopN(rows, "count", 1)
	require.Len(t, byCount, 1)
	assert.Equal(t, "b", byCount[0].Keys[0])
	assert.Equal(t, "a", rows[0].Keys[0], "input must not be reordered")
}

func TestViews(t *testing.T) {
	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC)
	s := New([]models.FlightRecord{
		rec("United", "ORD", "SFO", models.StatusDelayed, withDelay(45), withTime(sunday), withSatisfaction(4)),
		rec("Delta", "JFK", "LAX", models.StatusDelayed, withDelay(15), withTime(monday), withSatisfaction(8)),
		rec("Delta", "JFK", "LAX", models.StatusOnTime, withTime(monday), withPrice(500)),
		rec("Delta", "JFK", "LAX", models.StatusDelayed, withDelay(45), withTime(monday)),
	}, pipeline.CleaningStats{})

	airlines := s.AirlinePerformance()
	require.Len(t, airlines, 2)
	assert.Equal(t, "Delta", airlines[0].Airline)
	assert.Equal(t, 3, airlines[0].TotalFlights)
	assert.Equal(t, 20.0, airlines[0].AvgDelay)

	dist := s.DelayDistribution()
	assert.Equal(t, []float64{15, 45}, dist.DelayMinutes)
	assert.Equal(t, []int{1, 2}, dist.Count)

	daily := s.DailySeries()
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-03-04", daily[0].Date)
	assert.Equal(t, 3, daily[0].Flights)

	trends := s.TemporalTrends()
	assert.Equal(t, 3, trends.ByDay[0])
	assert.Equal(t, 1, trends.ByDay[6])
	assert.Equal(t, 4, trends.ByMonth[3])
	assert.Equal(t, 1, trends.ByHour[22])

	revenue := s.RevenueAnalysis()
	assert.Equal(t, 900.0, revenue.ByAirline["Delta"])

	factors := s.SatisfactionFactors()
	assert.InDelta(t, 6.0, factors.SeatClass["Economy"], 1e-9)

	segments := s.CustomerSegments()
	require.Len(t, segments, 1)
	assert.Equal(t, 4, segments[0].Flights)

	delays, err := s.DelayedAverage(models.ColAirline)
	require.NoError(t, err)
	assert.Equal(t, 30.0, delays["Delta"])
	assert.Equal(t, 45.0, delays["United"])
}
