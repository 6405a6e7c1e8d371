// Package trend estimates robust per-asset trend signals used to gate participation.
package trend

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// Metric selects which value of a trend fit Evaluate returns
type Metric string

const (
	MetricSlope     Metric = "slope"
	MetricIntercept Metric = "intercept"
	MetricRSquared  Metric = "r_squared"
	MetricCAGR      Metric = "cagr"
)

const daysPerYear = 365.0

// ParseMetric resolves a metric name. The short names "coefficient" and "r2"
// are accepted as aliases of slope and r_squared.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "slope", "coefficient":
		return MetricSlope, nil
	case "intercept":
		return MetricIntercept, nil
	case "r_squared", "r2":
		return MetricRSquared, nil
	case "cagr":
		return MetricCAGR, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidArgument, name)
	}
}

// Valid reports whether m is one of the known metrics
func (m Metric) Valid() bool {
	switch m {
	case MetricSlope, MetricIntercept, MetricRSquared, MetricCAGR:
		return true
	}
	return false
}

// Estimator fits a robust line through a price series, only on the configured
// rebalance weekday. Any other day yields an undefined signal so the regression
// is not recomputed on every trading day.
type Estimator struct {
	weekday time.Weekday
	fitter  Fitter
	log     zerolog.Logger
}

// NewEstimator creates a trend estimator gated on weekday
func NewEstimator(weekday time.Weekday, fitter Fitter, log zerolog.Logger) *Estimator {
	if fitter == nil {
		fitter = TheilSen{}
	}
	return &Estimator{
		weekday: weekday,
		fitter:  fitter,
		log:     log.With().Str("component", "trend_estimator").Logger(),
	}
}

// Weekday returns the rebalance weekday the estimator is gated on
func (e *Estimator) Weekday() time.Weekday {
	return e.weekday
}

// Evaluate returns a single metric of the trend fit.
// ok is false when the signal is undefined: fewer than 2 valid observations,
// last date not on the rebalance weekday, or a CAGR without a positive anchor.
func (e *Estimator) Evaluate(series domain.PriceSeries, metric Metric) (float64, bool, error) {
	if !metric.Valid() {
		return 0, false, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidArgument, metric)
	}

	result, err := e.Signal(series)
	if err != nil {
		return 0, false, err
	}
	v, ok := MetricValue(result, metric)
	return v, ok, nil
}

// MetricValue picks one metric out of a signal. ok is false for a nil signal,
// an unknown metric, or an undefined CAGR.
func MetricValue(result *domain.SignalResult, metric Metric) (float64, bool) {
	if result == nil {
		return 0, false
	}
	switch metric {
	case MetricSlope:
		return result.Slope, true
	case MetricIntercept:
		return result.Intercept, true
	case MetricRSquared:
		return result.RSquared, true
	case MetricCAGR:
		return result.CAGR, result.CAGRDefined
	default:
		return 0, false
	}
}

// Signal fits the series once and returns every metric.
// A nil result with a nil error means the signal is undefined.
func (e *Estimator) Signal(series domain.PriceSeries) (*domain.SignalResult, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	clean := series.DropNaN()
	if clean.Len() < 2 {
		return nil, nil
	}

	last := clean.Last().Date
	if last.Weekday() != e.weekday {
		return nil, nil
	}

	first := clean.First()
	x := make([]float64, clean.Len())
	y := make([]float64, clean.Len())
	for i, o := range clean.Observations {
		x[i] = elapsedDays(first.Date, o.Date)
		y[i] = o.Value
	}

	fit, err := e.fitter.Fit(x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to fit trend for %s: %w", series.Asset, err)
	}

	result := &domain.SignalResult{
		AsOf:         last,
		Slope:        fit.Slope,
		Intercept:    fit.Intercept,
		RSquared:     fit.Score,
		Observations: clean.Len(),
	}
	result.CAGR, result.CAGRDefined = annualizedGrowth(first.Value, fit.Slope, x[len(x)-1])

	e.log.Debug().
		Str("asset", series.Asset).
		Time("as_of", last).
		Int("observations", result.Observations).
		Float64("slope", result.Slope).
		Float64("r_squared", result.RSquared).
		Float64("cagr", result.CAGR).
		Msg("Evaluated trend")

	return result, nil
}

// annualizedGrowth projects the first observed value along the fitted slope to
// the last point and annualizes the change. The first value anchors the ratio
// because the fitted intercept can be near zero or negative.
func annualizedGrowth(firstValue, slope, lastDays float64) (float64, bool) {
	if firstValue <= 0 || lastDays <= 0 {
		return 0, false
	}
	end := firstValue + slope*lastDays
	return (end - firstValue) / firstValue * daysPerYear / lastDays, true
}

// elapsedDays counts whole days between two dates
func elapsedDays(from, to time.Time) float64 {
	return float64(int64(to.Sub(from) / (24 * time.Hour)))
}
