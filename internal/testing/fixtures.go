package testing

import (
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// DailySeries builds a series with one observation per day starting at start
func DailySeries(asset string, start time.Time, values ...float64) domain.PriceSeries {
	obs := make([]domain.Observation, len(values))
	for i, v := range values {
		obs[i] = domain.Observation{Date: start.AddDate(0, 0, i), Value: v}
	}
	return domain.PriceSeries{Asset: asset, Observations: obs}
}

// LinearSeries builds a daily series of n points growing by perDay from base
func LinearSeries(asset string, start time.Time, n int, base, perDay float64) domain.PriceSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = base + perDay*float64(i)
	}
	return DailySeries(asset, start, values...)
}
