// Package fixture generates deterministic flight datasets for tests.
package fixture

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"flightdash/models"
	"flightdash/pipeline"
)

var (
	Airlines = []string{"Delta", "United", "American", "Southwest"}
	Airports = []string{"JFK", "LAX", "ORD", "SFO", "ATL"}

	incomes  = []string{"Low", "Medium", "High"}
	purposes = []string{"Business", "Leisure"}
	classes  = []string{"Economy", "Business", "First"}
	checkins = []string{"Online", "Mobile", "Counter"}
	seats    = []string{"Window", "Aisle", "Middle"}
	tiers    = []string{"None", "Silver", "Gold"}
)

// Flights returns n rows; the first delayed rows are Delayed and every
// seventh of the rest is Cancelled. Every category value above appears when
// n is at least a few dozen.
func Flights(n, delayed int) []models.FlightRecord {
	rng := rand.New(rand.NewSource(7))
	out := make([]models.FlightRecord, n)
	for i := range out {
		weather := float64(rng.Intn(2))
		class := i % len(classes)
		from := Airports[i%len(Airports)]
		to := Airports[(i+1+rng.Intn(len(Airports)-1))%len(Airports)]
		r := models.FlightRecord{
			PassengerID:          fmt.Sprintf("P%05d", i),
			FlightID:             fmt.Sprintf("F%03d", i%60),
			Airline:              Airlines[i%len(Airlines)],
			DepartureAirport:     from,
			ArrivalAirport:       to,
			DepartureTime:        time.Date(2024, time.Month(1+i%3), 1+i%28, i%24, 15, 0, 0, time.UTC),
			DurationMinutes:      float64(60 + rng.Intn(300)),
			DistanceMiles:        float64(300 + rng.Intn(2500)),
			PriceUSD:             float64(80 + rng.Intn(900)),
			Age:                  float64(18 + rng.Intn(60)),
			Gender:               []string{"Male", "Female"}[i%2],
			IncomeLevel:          incomes[i%len(incomes)],
			TravelPurpose:        purposes[i%len(purposes)],
			SeatClass:            classes[class],
			BagsChecked:          float64(rng.Intn(3)),
			FrequentFlyerStatus:  tiers[i%len(tiers)],
			CheckInMethod:        checkins[i%len(checkins)],
			Status:               models.StatusOnTime,
			BookingDaysInAdvance: float64(rng.Intn(120)),
			WeatherImpact:        weather,
			SeatSelected:         seats[i%len(seats)],
			SatisfactionScore:    float64(3+2*class) + float64(rng.Intn(10))/10,
			NoShow:               rng.Intn(5) == 0,
		}
		switch {
		case i < delayed:
			r.Status = models.StatusDelayed
			r.DelayMinutes = 15 + 60*weather + float64(rng.Intn(10))
		case i%7 == 0:
			r.Status = models.StatusCancelled
		}
		out[i] = r
	}
	return out
}

// WriteCSV writes records to path in the dataset's CSV layout.
func WriteCSV(path string, records []models.FlightRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := pipeline.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
