// Package projection computes compound growth of a custody balance.
package projection

import "math"

const (
	// DefaultAnnualRate is the nominal CDI/Selic reference rate.
	DefaultAnnualRate = 0.1325
	// TradingDaysPerYear is the business-day convention used to derive the daily rate.
	TradingDaysPerYear = 252
)

// Rate is a nominal annual rate compounded per trading day.
type Rate struct {
	Annual      float64
	TradingDays int
}

// DefaultRate returns the 13.25% a.a. / 252 days rate.
func DefaultRate() Rate {
	return Rate{Annual: DefaultAnnualRate, TradingDays: TradingDaysPerYear}
}

// DailyRate returns (1+annual)^(1/tradingDays) - 1.
func (r Rate) DailyRate() float64 {
	days := r.TradingDays
	if days <= 0 {
		days = TradingDaysPerYear
	}
	return math.Pow(1+r.Annual, 1/float64(days)) - 1
}

// Project returns balance * (1+daily)^days. Callers reject negative days.
func (r Rate) Project(balance float64, days int) float64 {
	if days == 0 {
		return balance
	}
	return balance * math.Pow(1+r.DailyRate(), float64(days))
}

// Gain returns the projected growth over balance.
func (r Rate) Gain(balance float64, days int) float64 {
	return r.Project(balance, days) - balance
}

// Point is one entry of a projection series.
type Point struct {
	Offset int     `json:"offset"`
	Value  float64 `json:"value"`
}

// Series returns the projection for every offset in 0..days.
func (r Rate) Series(balance float64, days int) []Point {
	if days < 0 {
		return nil
	}
	points := make([]Point, 0, days+1)
	for i := 0; i <= days; i++ {
		points = append(points, Point{Offset: i, Value: r.Project(balance, i)})
	}
	return points
}
