package pipeline

import (
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"flightdash/models"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// csvRow 数据集的 CSV 行，列名与原始文件一致
type csvRow struct {
	PassengerID          string  `csv:"Passenger_ID"`
	FlightID             string  `csv:"Flight_ID"`
	Airline              string  `csv:"Airline"`
	DepartureAirport     string  `csv:"Departure_Airport"`
	ArrivalAirport       string  `csv:"Arrival_Airport"`
	DepartureTime        string  `csv:"Departure_Time"`
	DurationMinutes      float64 `csv:"Flight_Duration_Minutes"`
	DistanceMiles        float64 `csv:"Distance_Miles"`
	PriceUSD             float64 `csv:"Price_USD"`
	Age                  float64 `csv:"Age"`
	Gender               string  `csv:"Gender"`
	IncomeLevel          string  `csv:"Income_Level"`
	TravelPurpose        string  `csv:"Travel_Purpose"`
	SeatClass            string  `csv:"Seat_Class"`
	BagsChecked          float64 `csv:"Bags_Checked"`
	FrequentFlyerStatus  string  `csv:"Frequent_Flyer_Status"`
	CheckInMethod        string  `csv:"Check_in_Method"`
	Status               string  `csv:"Flight_Status"`
	DelayMinutes         float64 `csv:"Delay_Minutes"`
	BookingDaysInAdvance float64 `csv:"Booking_Days_In_Advance"`
	WeatherImpact        float64 `csv:"Weather_Impact"`
	SeatSelected         string  `csv:"Seat_Selected"`
	SatisfactionScore    float64 `csv:"Flight_Satisfaction_Score"`
	NoShow               int     `csv:"No_Show"`
}

// WriteCSV 按原始列名导出清洗后的记录，可被 Read 重新读入
func WriteCSV(w io.Writer, records []models.FlightRecord) error {
	rows := make([]csvRow, len(records))
	for i := range records {
		r := &records[i]
		rows[i] = csvRow{
			PassengerID:          r.PassengerID,
			FlightID:             r.FlightID,
			Airline:              r.Airline,
			DepartureAirport:     r.DepartureAirport,
			ArrivalAirport:       r.ArrivalAirport,
			DepartureTime:        r.DepartureTime.Format(exportTimeLayout),
			DurationMinutes:      r.DurationMinutes,
			DistanceMiles:        r.DistanceMiles,
			PriceUSD:             r.PriceUSD,
			Age:                  r.Age,
			Gender:               r.Gender,
			IncomeLevel:          r.IncomeLevel,
			TravelPurpose:        r.TravelPurpose,
			SeatClass:            r.SeatClass,
			BagsChecked:          r.BagsChecked,
			FrequentFlyerStatus:  r.FrequentFlyerStatus,
			CheckInMethod:        r.CheckInMethod,
			Status:               string(r.Status),
			DelayMinutes:         r.DelayMinutes,
			BookingDaysInAdvance: r.BookingDaysInAdvance,
			WeatherImpact:        r.WeatherImpact,
			SeatSelected:         r.SeatSelected,
			SatisfactionScore:    r.SatisfactionScore,
		}
		if r.NoShow {
			rows[i].NoShow = 1
		}
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	_, err = w.Write(data)
	return err
}
