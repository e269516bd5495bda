package store

import (
	"flightdash/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SummaryStats are the headline KPIs of the dashboard.
type SummaryStats struct {
	TotalFlights       int     `json:"total_flights"`
	OnTimeRate         float64 `json:"on_time_rate"`
	AvgDelay           float64 `json:"avg_delay"`
	AvgSatisfaction    float64 `json:"avg_satisfaction"`
	TotalRevenue       float64 `json:"total_revenue"`
	CancellationRate   float64 `json:"cancellation_rate"`
	NoShowRate         float64 `json:"no_show_rate"`
	AvgAge             float64 `json:"avg_age"`
	MaleRatio          float64 `json:"male_ratio"`
	AvgDuration        float64 `json:"avg_duration"`
	AvgDistance        float64 `json:"avg_distance"`
	AvgPrice           float64 `json:"avg_price"`
	MostPopularAirline string  `json:"most_popular_airline"`
}

// SummaryStats computes the KPIs. Average delay only covers delayed flights
// and is 0 when there are none; the modal airline breaks ties by first
// appearance. An empty store yields the zero value.
func (s *Store) SummaryStats() SummaryStats {
	n := len(s.records)
	if n == 0 {
		return SummaryStats{}
	}

	var onTime, cancelled, noShow, male int
	delays := make([]float64, 0)
	satisfaction := make([]float64, n)
	prices := make([]float64, n)
	ages := make([]float64, n)
	durations := make([]float64, n)
	distances := make([]float64, n)

	airlineCounts := make(map[string]int)
	airlineOrder := make([]string, 0)

	for i := range s.records {
		r := &s.records[i]
		switch r.Status {
		case models.StatusOnTime:
			onTime++
		case models.StatusCancelled:
			cancelled++
		case models.StatusDelayed:
			delays = append(delays, r.DelayMinutes)
		}
		if r.NoShow {
			noShow++
		}
		if r.Gender == "Male" {
			male++
		}
		satisfaction[i] = r.SatisfactionScore
		prices[i] = r.PriceUSD
		ages[i] = r.Age
		durations[i] = r.DurationMinutes
		distances[i] = r.DistanceMiles

		if _, ok := airlineCounts[r.Airline]; !ok {
			airlineOrder = append(airlineOrder, r.Airline)
		}
		airlineCounts[r.Airline]++
	}

	total := float64(n)
	stats := SummaryStats{
		TotalFlights:     n,
		OnTimeRate:       round(float64(onTime)/total*100, 2),
		AvgSatisfaction:  round(stat.Mean(satisfaction, nil), 2),
		TotalRevenue:     round(floats.Sum(prices), 2),
		CancellationRate: round(float64(cancelled)/total*100, 2),
		NoShowRate:       round(float64(noShow)/total*100, 2),
		AvgAge:           round(stat.Mean(ages, nil), 1),
		MaleRatio:        round(float64(male)/total*100, 1),
		AvgDuration:      round(stat.Mean(durations, nil), 1),
		AvgDistance:      round(stat.Mean(distances, nil), 1),
		AvgPrice:         round(stat.Mean(prices, nil), 2),
	}
	if len(delays) > 0 {
		stats.AvgDelay = round(stat.Mean(delays, nil), 2)
	}
	// rounding each rate separately must not push their sum past 100
	if stats.OnTimeRate+stats.CancellationRate > 100 {
		stats.CancellationRate = round(100-stats.OnTimeRate, 2)
	}

	best := -1
	for _, airline := range airlineOrder {
		if airlineCounts[airline] > best {
			best = airlineCounts[airline]
			stats.MostPopularAirline = airline
		}
	}
	return stats
}
