package optimization

import "gonum.org/v1/gonum/mat"

// CovarianceEstimator turns a return matrix (rows are observations, columns are
// assets) into a covariance matrix. The second return value is the shrinkage
// intensity that was applied, 0 for estimators that do not shrink.
type CovarianceEstimator interface {
	Name() string
	Estimate(returns *mat.Dense) (*mat.SymDense, float64, error)
}

// WeightOptimizer computes long-only fully invested weights from a covariance matrix
type WeightOptimizer interface {
	Optimize(cov *mat.SymDense) ([]float64, error)
}
