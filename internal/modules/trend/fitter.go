package trend

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/rebalancer/internal/domain"
)

// Fit holds the coefficients of a fitted line y = Intercept + Slope*x
type Fit struct {
	Slope     float64
	Intercept float64
	Score     float64 // explained-variance R²
}

// Fitter fits a line through (x, y). Implementations must tolerate outliers;
// ordinary least squares is deliberately not offered.
type Fitter interface {
	Name() string
	Fit(x, y []float64) (Fit, error)
}

// Regression strategy names accepted by NewFitter
const (
	FitterTheilSen       = "theil_sen"
	FitterRepeatedMedian = "siegel"
)

// NewFitter resolves a regression strategy by name
func NewFitter(name string) (Fitter, error) {
	switch name {
	case "", FitterTheilSen:
		return TheilSen{}, nil
	case FitterRepeatedMedian:
		return RepeatedMedian{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown regression %q", domain.ErrInvalidArgument, name)
	}
}

// TheilSen estimates the slope as the median of all pairwise slopes and the
// intercept as the median of y - slope*x.
type TheilSen struct{}

// Name returns the strategy name
func (TheilSen) Name() string { return FitterTheilSen }

// Fit implements Fitter. x must be strictly increasing.
func (TheilSen) Fit(x, y []float64) (Fit, error) {
	if err := checkXY(x, y); err != nil {
		return Fit{}, err
	}

	n := len(x)
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			slopes = append(slopes, (y[j]-y[i])/(x[j]-x[i]))
		}
	}
	slope := median(slopes)
	return finishFit(x, y, slope), nil
}

// RepeatedMedian is Siegel's estimator: for every point take the median slope
// to all other points, then the median of those medians. It tolerates up to
// half of the points being outliers.
type RepeatedMedian struct{}

// Name returns the strategy name
func (RepeatedMedian) Name() string { return FitterRepeatedMedian }

// Fit implements Fitter. x must be strictly increasing.
func (RepeatedMedian) Fit(x, y []float64) (Fit, error) {
	if err := checkXY(x, y); err != nil {
		return Fit{}, err
	}

	n := len(x)
	perPoint := make([]float64, n)
	buf := make([]float64, 0, n-1)
	for i := 0; i < n; i++ {
		buf = buf[:0]
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			buf = append(buf, (y[j]-y[i])/(x[j]-x[i]))
		}
		perPoint[i] = median(buf)
	}
	slope := median(perPoint)
	return finishFit(x, y, slope), nil
}

func checkXY(x, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d x values but %d y values", domain.ErrInvalidArgument, len(x), len(y))
	}
	if len(x) < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", domain.ErrInsufficientData, len(x))
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return fmt.Errorf("%w: x must be strictly increasing", domain.ErrInvalidArgument)
		}
	}
	return nil
}

func finishFit(x, y []float64, slope float64) Fit {
	residuals := make([]float64, len(y))
	for i := range y {
		residuals[i] = y[i] - slope*x[i]
	}
	intercept := median(residuals)
	return Fit{
		Slope:     slope,
		Intercept: intercept,
		Score:     score(x, y, intercept, slope),
	}
}

// score is R² of the fitted line. A constant series has no variance to explain:
// it scores 1 when the line reproduces it exactly and 0 otherwise.
func score(x, y []float64, intercept, slope float64) float64 {
	r2 := stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		for i := range x {
			if intercept+slope*x[i] != y[i] {
				return 0
			}
		}
		return 1
	}
	return r2
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
