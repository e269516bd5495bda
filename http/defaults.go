package http

import (
	"math"

	"flightdash/models"
	"flightdash/predictor"
)

// DefaultsPolicy 预测接口的请求补全策略：Base 提供完整的特征记录，
// 只有 Overridable 中的字段可以由客户端覆盖，Integer 中的字段取整
type DefaultsPolicy struct {
	Base        predictor.FeatureRecord
	Overridable []string
	Integer     []string
}

func baseFeatures() predictor.FeatureRecord {
	return predictor.FeatureRecord{
		Airline:              "Delta",
		DepartureAirport:     "JFK",
		ArrivalAirport:       "LAX",
		Gender:               "Male",
		IncomeLevel:          "Medium",
		TravelPurpose:        "Business",
		SeatClass:            "Economy",
		CheckInMethod:        "Online",
		SeatSelected:         "Window",
		DurationMinutes:      180,
		DistanceMiles:        1000,
		PriceUSD:             250,
		Age:                  35,
		BagsChecked:          1,
		BookingDaysInAdvance: 30,
		WeatherImpact:        0,
	}
}

// DelayPolicy 航线与航程相关字段可覆盖
func DelayPolicy() DefaultsPolicy {
	return DefaultsPolicy{
		Base: baseFeatures(),
		Overridable: []string{
			models.ColAirline,
			models.ColDepartureAirport,
			models.ColArrivalAirport,
			models.ColDuration,
			models.ColDistance,
			models.ColPrice,
			models.ColWeatherImpact,
		},
		Integer: []string{models.ColDuration, models.ColDistance, models.ColWeatherImpact},
	}
}

// SatisfactionPolicy 服务体验相关字段可覆盖
func SatisfactionPolicy() DefaultsPolicy {
	return DefaultsPolicy{
		Base: baseFeatures(),
		Overridable: []string{
			models.ColAirline,
			models.ColIncomeLevel,
			models.ColTravelPurpose,
			models.ColSeatClass,
			models.ColCheckInMethod,
			models.ColDuration,
			models.ColPrice,
		},
		Integer: []string{models.ColDuration},
	}
}

// NoShowPolicy 乘客画像与预订相关字段可覆盖
func NoShowPolicy() DefaultsPolicy {
	return DefaultsPolicy{
		Base: baseFeatures(),
		Overridable: []string{
			models.ColIncomeLevel,
			models.ColTravelPurpose,
			models.ColSeatClass,
			models.ColPrice,
			models.ColAge,
			models.ColBookingDaysInAdvance,
		},
		Integer: []string{models.ColAge, models.ColBookingDaysInAdvance},
	}
}

// Apply 用请求体覆盖允许的字段后解析为完整记录；其余字段被忽略
func (p DefaultsPolicy) Apply(body map[string]interface{}) (predictor.FeatureRecord, error) {
	merged := p.Base.Map()
	for _, col := range p.Overridable {
		if v, ok := body[col]; ok && v != nil {
			merged[col] = v
		}
	}

	rec, err := predictor.ParseFeatureRecord(merged)
	if err != nil {
		return predictor.FeatureRecord{}, err
	}
	if len(p.Integer) > 0 {
		m := rec.Map()
		for _, col := range p.Integer {
			m[col] = math.Trunc(m[col].(float64))
		}
		if rec, err = predictor.ParseFeatureRecord(m); err != nil {
			return predictor.FeatureRecord{}, err
		}
	}
	return rec, nil
}
