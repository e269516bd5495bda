package models

import (
	"strconv"
	"time"
)

// FlightStatus is the operational outcome of a flight.
type FlightStatus string

const (
	StatusOnTime    FlightStatus = "On-time"
	StatusDelayed   FlightStatus = "Delayed"
	StatusCancelled FlightStatus = "Cancelled"
)

// Dataset column names.
const (
	ColPassengerID          = "Passenger_ID"
	ColFlightID             = "Flight_ID"
	ColAirline              = "Airline"
	ColDepartureAirport     = "Departure_Airport"
	ColArrivalAirport       = "Arrival_Airport"
	ColDepartureTime        = "Departure_Time"
	ColDuration             = "Flight_Duration_Minutes"
	ColDistance             = "Distance_Miles"
	ColPrice                = "Price_USD"
	ColAge                  = "Age"
	ColGender               = "Gender"
	ColIncomeLevel          = "Income_Level"
	ColTravelPurpose        = "Travel_Purpose"
	ColSeatClass            = "Seat_Class"
	ColBagsChecked          = "Bags_Checked"
	ColFrequentFlyerStatus  = "Frequent_Flyer_Status"
	ColCheckInMethod        = "Check_in_Method"
	ColFlightStatus         = "Flight_Status"
	ColDelayMinutes         = "Delay_Minutes"
	ColBookingDaysInAdvance = "Booking_Days_In_Advance"
	ColWeatherImpact        = "Weather_Impact"
	ColSeatSelected         = "Seat_Selected"
	ColSatisfactionScore    = "Flight_Satisfaction_Score"
	ColNoShow               = "No_Show"
)

// Derived dimensions computed from Departure_Time and the airport pair.
const (
	DimDate      = "Date"
	DimMonth     = "Month"
	DimHour      = "Hour"
	DimDayOfWeek = "DayOfWeek"
	DimRoute     = "Route"
)

// RequiredColumns lists every column the loader expects in the dataset header.
func RequiredColumns() []string {
	return []string{
		ColPassengerID, ColFlightID, ColAirline, ColDepartureAirport, ColArrivalAirport,
		ColDepartureTime, ColDuration, ColDistance, ColPrice, ColAge, ColGender,
		ColIncomeLevel, ColTravelPurpose, ColSeatClass, ColBagsChecked,
		ColFrequentFlyerStatus, ColCheckInMethod, ColFlightStatus, ColDelayMinutes,
		ColBookingDaysInAdvance, ColWeatherImpact, ColSeatSelected,
		ColSatisfactionScore, ColNoShow,
	}
}

// FlightRecord is one passenger booking row of the dataset.
type FlightRecord struct {
	PassengerID          string       `json:"passenger_id"`
	FlightID             string       `json:"flight_id"`
	Airline              string       `json:"airline"`
	DepartureAirport     string       `json:"departure_airport"`
	ArrivalAirport       string       `json:"arrival_airport"`
	DepartureTime        time.Time    `json:"departure_time"`
	DurationMinutes      float64      `json:"flight_duration_minutes"`
	DistanceMiles        float64      `json:"distance_miles"`
	PriceUSD             float64      `json:"price_usd"`
	Age                  float64      `json:"age"`
	Gender               string       `json:"gender"`
	IncomeLevel          string       `json:"income_level"`
	TravelPurpose        string       `json:"travel_purpose"`
	SeatClass            string       `json:"seat_class"`
	BagsChecked          float64      `json:"bags_checked"`
	FrequentFlyerStatus  string       `json:"frequent_flyer_status"`
	CheckInMethod        string       `json:"check_in_method"`
	Status               FlightStatus `json:"flight_status"`
	DelayMinutes         float64      `json:"delay_minutes"`
	BookingDaysInAdvance float64      `json:"booking_days_in_advance"`
	WeatherImpact        float64      `json:"weather_impact"`
	SeatSelected         string       `json:"seat_selected"`
	SatisfactionScore    float64      `json:"flight_satisfaction_score"`
	NoShow               bool         `json:"no_show"`
}

// Dimension returns the string value of a groupable column.
func (r *FlightRecord) Dimension(name string) (string, bool) {
	switch name {
	case ColPassengerID:
		return r.PassengerID, true
	case ColFlightID:
		return r.FlightID, true
	case ColAirline:
		return r.Airline, true
	case ColDepartureAirport:
		return r.DepartureAirport, true
	case ColArrivalAirport:
		return r.ArrivalAirport, true
	case ColGender:
		return r.Gender, true
	case ColIncomeLevel:
		return r.IncomeLevel, true
	case ColTravelPurpose:
		return r.TravelPurpose, true
	case ColSeatClass:
		return r.SeatClass, true
	case ColFrequentFlyerStatus:
		return r.FrequentFlyerStatus, true
	case ColCheckInMethod:
		return r.CheckInMethod, true
	case ColFlightStatus:
		return string(r.Status), true
	case ColSeatSelected:
		return r.SeatSelected, true
	case DimRoute:
		return r.DepartureAirport + " → " + r.ArrivalAirport, true
	case DimDate:
		return r.DepartureTime.Format("2006-01-02"), true
	case DimMonth:
		return strconv.Itoa(int(r.DepartureTime.Month())), true
	case DimHour:
		return strconv.Itoa(r.DepartureTime.Hour()), true
	case DimDayOfWeek:
		return strconv.Itoa(DayOfWeek(r.DepartureTime)), true
	}
	return "", false
}

// Measure returns the numeric value of an aggregatable column.
func (r *FlightRecord) Measure(name string) (float64, bool) {
	switch name {
	case ColDuration:
		return r.DurationMinutes, true
	case ColDistance:
		return r.DistanceMiles, true
	case ColPrice:
		return r.PriceUSD, true
	case ColAge:
		return r.Age, true
	case ColBagsChecked:
		return r.BagsChecked, true
	case ColDelayMinutes:
		return r.DelayMinutes, true
	case ColBookingDaysInAdvance:
		return r.BookingDaysInAdvance, true
	case ColWeatherImpact:
		return r.WeatherImpact, true
	case ColSatisfactionScore:
		return r.SatisfactionScore, true
	case ColNoShow:
		if r.NoShow {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// DayOfWeek numbers days Monday=0 .. Sunday=6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
