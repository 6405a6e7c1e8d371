package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/rebalancer/internal/domain"
)

// Covariance estimator names accepted by NewCovarianceEstimator
const (
	CovarianceLedoitWolf = "ledoit_wolf"
	CovarianceSample     = "sample"
)

const (
	HighCorrelationThreshold = 0.80 // 80% correlation is considered "high"
)

// CorrelationPair represents a pair of assets with high correlation
type CorrelationPair struct {
	Asset1      string  `json:"asset1" msgpack:"asset1" yaml:"asset1"`
	Asset2      string  `json:"asset2" msgpack:"asset2" yaml:"asset2"`
	Correlation float64 `json:"correlation" msgpack:"correlation" yaml:"correlation"`
}

// NewCovarianceEstimator resolves a covariance estimator by name
func NewCovarianceEstimator(name string) (CovarianceEstimator, error) {
	switch name {
	case "", CovarianceLedoitWolf:
		return LedoitWolf{}, nil
	case CovarianceSample:
		return SampleCovariance{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown covariance estimator %q", domain.ErrInvalidArgument, name)
	}
}

// LedoitWolf shrinks the empirical covariance toward a scaled identity mu*I,
// where mu is the average variance. The intensity is the analytic
// Ledoit-Wolf (2004) estimate and lies in [0, 1].
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for large-dimensional covariance matrices"
type LedoitWolf struct{}

// Name returns the estimator name
func (LedoitWolf) Name() string { return CovarianceLedoitWolf }

// Estimate implements CovarianceEstimator
func (LedoitWolf) Estimate(returns *mat.Dense) (*mat.SymDense, float64, error) {
	n, p := returns.Dims()
	if n == 0 || p == 0 {
		return nil, 0, fmt.Errorf("%w: empty return matrix", domain.ErrOptimizationFailed)
	}

	// Center columns
	x := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, returns)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			x.Set(i, j, col[i]-mean)
		}
	}

	// Empirical covariance with 1/n normalisation
	emp := mat.NewSymDense(p, nil)
	emp.SymOuterK(1/float64(n), x.T())

	shrinkage := ledoitWolfShrinkage(x, emp)

	mu := mat.Trace(emp) / float64(p)
	shrunk := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - shrinkage) * emp.At(i, j)
			if i == j {
				v += shrinkage * mu
			}
			shrunk.SetSym(i, j, v)
		}
	}

	return shrunk, shrinkage, nil
}

// ledoitWolfShrinkage computes the optimal intensity from centered data x
// (n observations by p assets) and its empirical covariance.
func ledoitWolfShrinkage(x *mat.Dense, emp *mat.SymDense) float64 {
	n, p := x.Dims()
	if p == 1 {
		return 0
	}
	nf, pf := float64(n), float64(p)

	x2 := mat.NewDense(n, p, nil)
	x2.MulElem(x, x)

	traceSum := mat.Trace(emp)
	mu := traceSum / pf

	// beta_ = sum((X²)ᵀX²), delta_ = sum((XᵀX)²)/n²
	var x2tx2, xtx mat.Dense
	x2tx2.Mul(x2.T(), x2)
	xtx.Mul(x.T(), x)

	betaRaw := mat.Sum(&x2tx2)
	deltaRaw := 0.0
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			v := xtx.At(i, j)
			deltaRaw += v * v
		}
	}
	deltaRaw /= nf * nf

	beta := (betaRaw/nf - deltaRaw) / (pf * nf)
	delta := (deltaRaw - 2*mu*traceSum + pf*mu*mu) / pf

	beta = math.Min(beta, delta)
	if beta <= 0 || delta <= 0 {
		return 0
	}
	return beta / delta
}

// SampleCovariance is the unbiased sample covariance with no shrinkage.
// It is ill-conditioned when assets outnumber observations.
type SampleCovariance struct{}

// Name returns the estimator name
func (SampleCovariance) Name() string { return CovarianceSample }

// Estimate implements CovarianceEstimator
func (SampleCovariance) Estimate(returns *mat.Dense) (*mat.SymDense, float64, error) {
	n, p := returns.Dims()
	if n < 2 || p == 0 {
		return nil, 0, fmt.Errorf("%w: need at least 2 observations for a sample covariance, got %d", domain.ErrOptimizationFailed, n)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, returns, nil)
	return &cov, 0, nil
}

// highCorrelations extracts pairs whose absolute correlation meets threshold
func highCorrelations(cov mat.Symmetric, assets []string, threshold float64) []CorrelationPair {
	n := cov.SymmetricDim()
	pairs := make([]CorrelationPair, 0)
	if n == 0 || len(assets) != n {
		return pairs
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := cov.At(i, i), cov.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			correlation := cov.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(correlation) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Asset1:      assets[i],
					Asset2:      assets[j],
					Correlation: correlation,
				})
			}
		}
	}
	return pairs
}
