package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestNewCovarianceEstimator(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		wantErr  bool
	}{
		{name: "", expected: CovarianceLedoitWolf},
		{name: "ledoit_wolf", expected: CovarianceLedoitWolf},
		{name: "sample", expected: CovarianceSample},
		{name: "oas", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := NewCovarianceEstimator(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, est.Name())
		})
	}
}

func TestLedoitWolf_FullShrinkage(t *testing.T) {
	// Centered columns [1,-1,0] and [-1,-1,2]: the analytic intensity saturates at 1
	returns := mat.NewDense(3, 2, []float64{
		2, 0,
		0, 0,
		1, 3,
	})

	cov, shrinkage, err := LedoitWolf{}.Estimate(returns)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, shrinkage, 1e-12)
	assert.InDelta(t, 4.0/3, cov.At(0, 0), 1e-12)
	assert.InDelta(t, 4.0/3, cov.At(1, 1), 1e-12)
	assert.InDelta(t, 0.0, cov.At(0, 1), 1e-12)
}

func TestLedoitWolf_SingleAsset(t *testing.T) {
	returns := mat.NewDense(4, 1, []float64{0.01, -0.02, 0.03, 0.00})

	cov, shrinkage, err := LedoitWolf{}.Estimate(returns)
	require.NoError(t, err)
	assert.Zero(t, shrinkage)

	// population variance, 1/n normalisation
	col := []float64{0.01, -0.02, 0.03, 0.00}
	mean := stat.Mean(col, nil)
	expected := 0.0
	for _, v := range col {
		expected += (v - mean) * (v - mean)
	}
	expected /= 4
	assert.InDelta(t, expected, cov.At(0, 0), 1e-15)
}

func TestLedoitWolf_PreservesTraceAndShrinksOffDiagonal(t *testing.T) {
	returns := mat.NewDense(6, 3, []float64{
		0.010, 0.012, -0.004,
		-0.020, -0.018, 0.010,
		0.030, 0.025, 0.002,
		0.005, 0.001, -0.015,
		-0.012, -0.010, 0.020,
		0.018, 0.020, 0.001,
	})

	shrunk, shrinkage, err := LedoitWolf{}.Estimate(returns)
	require.NoError(t, err)
	require.GreaterOrEqual(t, shrinkage, 0.0)
	require.LessOrEqual(t, shrinkage, 1.0)

	sample, _, err := SampleCovariance{}.Estimate(returns)
	require.NoError(t, err)

	// Empirical covariance uses 1/n, the sample estimator 1/(n-1)
	scale := 5.0 / 6.0
	assert.InDelta(t, mat.Trace(sample)*scale, mat.Trace(shrunk), 1e-15)
	assert.InDelta(t, sample.At(0, 1)*scale*(1-shrinkage), shrunk.At(0, 1), 1e-15)
}

func TestSampleCovariance(t *testing.T) {
	a := []float64{0.01, 0.02, -0.01, 0.03}
	b := []float64{0.00, 0.01, 0.02, -0.01}
	returns := mat.NewDense(4, 2, []float64{
		a[0], b[0],
		a[1], b[1],
		a[2], b[2],
		a[3], b[3],
	})

	cov, shrinkage, err := SampleCovariance{}.Estimate(returns)
	require.NoError(t, err)
	assert.Zero(t, shrinkage)
	assert.InDelta(t, stat.Covariance(a, b, nil), cov.At(0, 1), 1e-15)
	assert.InDelta(t, stat.Variance(a, nil), cov.At(0, 0), 1e-15)

	_, _, err = SampleCovariance{}.Estimate(mat.NewDense(1, 2, []float64{0.1, 0.2}))
	assert.ErrorIs(t, err, domain.ErrOptimizationFailed)
}

func TestHighCorrelations(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{
		1.0, 0.9, 0.1,
		0.9, 1.0, -0.85,
		0.1, -0.85, 1.0,
	})

	pairs := highCorrelations(cov, []string{"ADA", "BTC", "ETH"}, HighCorrelationThreshold)
	require.Len(t, pairs, 2)
	assert.Equal(t, CorrelationPair{Asset1: "ADA", Asset2: "BTC", Correlation: 0.9}, pairs[0])
	assert.Equal(t, "BTC", pairs[1].Asset1)
	assert.Equal(t, "ETH", pairs[1].Asset2)
	assert.InDelta(t, -0.85, pairs[1].Correlation, 1e-12)

	assert.Empty(t, highCorrelations(cov, []string{"ADA"}, HighCorrelationThreshold))
}
