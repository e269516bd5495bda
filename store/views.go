package store

import (
	"sort"
	"strconv"

	"flightdash/models"
)

// The view structs keep the column names the chart front end binds to.

type AirlineStats struct {
	Airline         string  `json:"Airline" csv:"Airline"`
	AvgSatisfaction float64 `json:"Avg_Satisfaction" csv:"Avg_Satisfaction"`
	AvgDelay        float64 `json:"Avg_Delay" csv:"Avg_Delay"`
	AvgPrice        float64 `json:"Avg_Price" csv:"Avg_Price"`
	TotalFlights    int     `json:"Total_Flights" csv:"Total_Flights"`
}

type DelayDistribution struct {
	DelayMinutes []float64 `json:"delay_minutes"`
	Count        []int     `json:"count"`
}

type RouteStats struct {
	DepartureAirport string  `json:"Departure_Airport" csv:"Departure_Airport"`
	ArrivalAirport   string  `json:"Arrival_Airport" csv:"Arrival_Airport"`
	Route            string  `json:"Route" csv:"Route"`
	Flights          int     `json:"Flight_ID" csv:"Flights"`
	AvgPrice         float64 `json:"Price_USD" csv:"Avg_Price_USD"`
	AvgDelay         float64 `json:"Delay_Minutes" csv:"Avg_Delay_Minutes"`
	AvgSatisfaction  float64 `json:"Flight_Satisfaction_Score" csv:"Avg_Satisfaction"`
}

type DailyStats struct {
	Date            string  `json:"Date" csv:"Date"`
	Flights         int     `json:"Flight_ID" csv:"Flights"`
	AvgDelay        float64 `json:"Delay_Minutes" csv:"Avg_Delay_Minutes"`
	AvgSatisfaction float64 `json:"Flight_Satisfaction_Score" csv:"Avg_Satisfaction"`
}

type TemporalTrends struct {
	ByMonth map[int]int `json:"by_month"`
	ByHour  map[int]int `json:"by_hour"`
	ByDay   map[int]int `json:"by_day"`
}

type SatisfactionFactors struct {
	SeatClass     map[string]float64 `json:"seat_class"`
	CheckIn       map[string]float64 `json:"check_in"`
	TravelPurpose map[string]float64 `json:"travel_purpose"`
}

type RevenueAnalysis struct {
	ByAirline map[string]float64 `json:"by_airline"`
	ByClass   map[string]float64 `json:"by_class"`
}

type SegmentStats struct {
	IncomeLevel     string  `json:"Income_Level" csv:"Income_Level"`
	TravelPurpose   string  `json:"Travel_Purpose" csv:"Travel_Purpose"`
	Flights         int     `json:"Flight_ID" csv:"Flights"`
	AvgPrice        float64 `json:"Price_USD" csv:"Avg_Price_USD"`
	AvgSatisfaction float64 `json:"Flight_Satisfaction_Score" csv:"Avg_Satisfaction"`
}

const (
	aliasSatisfaction = "satisfaction"
	aliasDelay        = "delay"
	aliasPrice        = "price"
)

var (
	meanSatisfaction = Aggregation{Column: models.ColSatisfactionScore, Func: AggMean, Alias: aliasSatisfaction}
	meanDelay        = Aggregation{Column: models.ColDelayMinutes, Func: AggMean, Alias: aliasDelay}
	meanPrice        = Aggregation{Column: models.ColPrice, Func: AggMean, Alias: aliasPrice}
)

func isDelayed(r *models.FlightRecord) bool {
	return r.Status == models.StatusDelayed
}

// AirlinePerformance returns per-airline means, ordered by airline name.
func (s *Store) AirlinePerformance() []AirlineStats {
	rows := s.groupBy([]string{models.ColAirline},
		[]Aggregation{meanSatisfaction, meanDelay, meanPrice}, nil)

	out := make([]AirlineStats, len(rows))
	for i, row := range rows {
		out[i] = AirlineStats{
			Airline:         row.Keys[0],
			AvgSatisfaction: row.Value(aliasSatisfaction),
			AvgDelay:        row.Value(aliasDelay),
			AvgPrice:        row.Value(aliasPrice),
			TotalFlights:    row.Count,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Airline < out[j].Airline })
	return out
}

// DelayDistribution counts delayed flights per delay value, ascending.
func (s *Store) DelayDistribution() DelayDistribution {
	counts := make(map[float64]int)
	for i := range s.records {
		if isDelayed(&s.records[i]) {
			counts[s.records[i].DelayMinutes]++
		}
	}
	minutes := make([]float64, 0, len(counts))
	for m := range counts {
		minutes = append(minutes, m)
	}
	sort.Float64s(minutes)

	dist := DelayDistribution{DelayMinutes: minutes, Count: make([]int, len(minutes))}
	for i, m := range minutes {
		dist.Count[i] = counts[m]
	}
	return dist
}

// TopRoutes ranks departure/arrival pairs by flight count. n <= 0 means 10.
func (s *Store) TopRoutes(n int) []RouteStats {
	if n <= 0 {
		n = 10
	}
	rows := s.groupBy([]string{models.ColDepartureAirport, models.ColArrivalAirport},
		[]Aggregation{meanPrice, meanDelay, meanSatisfaction}, nil)
	rows = TopN(rows, string(AggCount), n)

	out := make([]RouteStats, len(rows))
	for i, row := range rows {
		out[i] = RouteStats{
			DepartureAirport: row.Keys[0],
			ArrivalAirport:   row.Keys[1],
			Route:            row.Keys[0] + " → " + row.Keys[1],
			Flights:          row.Count,
			AvgPrice:         row.Value(aliasPrice),
			AvgDelay:         row.Value(aliasDelay),
			AvgSatisfaction:  row.Value(aliasSatisfaction),
		}
	}
	return out
}

// DailySeries aggregates per departure date, ascending.
func (s *Store) DailySeries() []DailyStats {
	rows := s.groupBy([]string{models.DimDate},
		[]Aggregation{meanDelay, meanSatisfaction}, nil)

	out := make([]DailyStats, len(rows))
	for i, row := range rows {
		out[i] = DailyStats{
			Date:            row.Keys[0],
			Flights:         row.Count,
			AvgDelay:        row.Value(aliasDelay),
			AvgSatisfaction: row.Value(aliasSatisfaction),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// TemporalTrends counts flights per month (1-12), hour (0-23) and weekday
// (0 = Monday).
func (s *Store) TemporalTrends() TemporalTrends {
	return TemporalTrends{
		ByMonth: s.countBy(models.DimMonth),
		ByHour:  s.countBy(models.DimHour),
		ByDay:   s.countBy(models.DimDayOfWeek),
	}
}

func (s *Store) countBy(dim string) map[int]int {
	out := make(map[int]int)
	for _, row := range s.groupBy([]string{dim}, nil, nil) {
		k, err := strconv.Atoi(row.Keys[0])
		if err != nil {
			continue
		}
		out[k] = row.Count
	}
	return out
}

// SatisfactionFactors returns mean satisfaction per seat class, check-in
// method and travel purpose.
func (s *Store) SatisfactionFactors() SatisfactionFactors {
	return SatisfactionFactors{
		SeatClass:     s.aggregateBy(models.ColSeatClass, meanSatisfaction),
		CheckIn:       s.aggregateBy(models.ColCheckInMethod, meanSatisfaction),
		TravelPurpose: s.aggregateBy(models.ColTravelPurpose, meanSatisfaction),
	}
}

// RevenueAnalysis sums ticket prices per airline and per seat class.
func (s *Store) RevenueAnalysis() RevenueAnalysis {
	sumPrice := Aggregation{Column: models.ColPrice, Func: AggSum, Alias: aliasPrice}
	byAirline := s.aggregateBy(models.ColAirline, sumPrice)
	byClass := s.aggregateBy(models.ColSeatClass, sumPrice)
	for k, v := range byAirline {
		byAirline[k] = round(v, 2)
	}
	for k, v := range byClass {
		byClass[k] = round(v, 2)
	}
	return RevenueAnalysis{ByAirline: byAirline, ByClass: byClass}
}

func (s *Store) aggregateBy(key string, agg Aggregation) map[string]float64 {
	out := make(map[string]float64)
	for _, row := range s.groupBy([]string{key}, []Aggregation{agg}, nil) {
		out[row.Keys[0]] = row.Value(agg.Name())
	}
	return out
}

// CustomerSegments aggregates per income level and travel purpose, ordered
// by both keys.
func (s *Store) CustomerSegments() []SegmentStats {
	rows := s.groupBy([]string{models.ColIncomeLevel, models.ColTravelPurpose},
		[]Aggregation{meanPrice, meanSatisfaction}, nil)

	out := make([]SegmentStats, len(rows))
	for i, row := range rows {
		out[i] = SegmentStats{
			IncomeLevel:     row.Keys[0],
			TravelPurpose:   row.Keys[1],
			Flights:         row.Count,
			AvgPrice:        row.Value(aliasPrice),
			AvgSatisfaction: row.Value(aliasSatisfaction),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IncomeLevel != out[j].IncomeLevel {
			return out[i].IncomeLevel < out[j].IncomeLevel
		}
		return out[i].TravelPurpose < out[j].TravelPurpose
	})
	return out
}

// DelayedAverage is the mean delay of delayed flights grouped by one key,
// used by the delay chart drill-down.
func (s *Store) DelayedAverage(key string) (map[string]float64, error) {
	if err := validate([]string{key}, []Aggregation{meanDelay}); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, row := range s.groupBy([]string{key}, []Aggregation{meanDelay}, isDelayed) {
		out[row.Keys[0]] = row.Value(aliasDelay)
	}
	return out, nil
}
