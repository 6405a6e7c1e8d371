// Package optimization turns eligible price histories into long-only target
// weights that maximise the diversification ratio.
package optimization

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/utils"
)

const (
	// weights below this are reported as exactly zero
	weightSnapThreshold = 1e-9
	// tolerance on the sum of the final weights
	weightSumTolerance = 1e-6
	// relative tolerance of the first-order optimality check
	kktTolerance = 1e-6
	// weights below this are treated as resting on the zero bound by that check
	kktActiveWeight = 1e-4
)

// Settings bounds the solver cost
type Settings struct {
	MaxIterations     int     `json:"max_iterations" yaml:"max_iterations"`
	GradientTolerance float64 `json:"gradient_tolerance" yaml:"gradient_tolerance"`
}

// DefaultSettings returns the solver settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     1000,
		GradientTolerance: 1e-9,
	}
}

// Result carries the weights of one optimisation plus diagnostics
type Result struct {
	Weights              domain.WeightVector `json:"weights" msgpack:"weights" yaml:"weights"`
	Estimator            string              `json:"estimator" msgpack:"estimator" yaml:"estimator"`
	Shrinkage            float64             `json:"shrinkage" msgpack:"shrinkage" yaml:"shrinkage"`
	Observations         int                 `json:"observations" msgpack:"observations" yaml:"observations"`
	DiversificationRatio float64             `json:"diversification_ratio" msgpack:"diversification_ratio" yaml:"diversification_ratio"`
	Status               string              `json:"status" msgpack:"status" yaml:"status"`
	Iterations           int                 `json:"iterations" msgpack:"iterations" yaml:"iterations"`
	HighCorrelations     []CorrelationPair   `json:"high_correlations" msgpack:"high_correlations" yaml:"high_correlations"`
}

// solution is the raw output of one solver run
type solution struct {
	weights    []float64
	status     string
	iterations int
}

// DiversificationOptimizer maximises DR(w) = (w·σ) / sqrt(wᵀΣw) subject to
// Σw = 1 and 0 ≤ w ≤ 1, starting from equal weights.
//
// The simplex is parametrised as w = softmax(z), so every iterate is feasible
// and an unconstrained quasi-Newton method can be used.
type DiversificationOptimizer struct {
	estimator CovarianceEstimator
	settings  Settings
	log       zerolog.Logger
}

// NewDiversificationOptimizer creates an optimizer. A nil estimator selects Ledoit-Wolf.
func NewDiversificationOptimizer(estimator CovarianceEstimator, settings Settings, log zerolog.Logger) *DiversificationOptimizer {
	if estimator == nil {
		estimator = LedoitWolf{}
	}
	defaults := DefaultSettings()
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = defaults.MaxIterations
	}
	if settings.GradientTolerance <= 0 {
		settings.GradientTolerance = defaults.GradientTolerance
	}
	return &DiversificationOptimizer{
		estimator: estimator,
		settings:  settings,
		log:       log.With().Str("component", "diversification_optimizer").Logger(),
	}
}

// ComputeWeights returns target weights for the given histories.
// Empty input yields an empty vector and no error.
func (o *DiversificationOptimizer) ComputeWeights(prices map[string]domain.PriceSeries) (domain.WeightVector, error) {
	result, err := o.Run(prices)
	if err != nil {
		return nil, err
	}
	return result.Weights, nil
}

// Run is ComputeWeights with diagnostics
func (o *DiversificationOptimizer) Run(prices map[string]domain.PriceSeries) (*Result, error) {
	if len(prices) == 0 {
		return &Result{Weights: domain.WeightVector{}, Estimator: o.estimator.Name(), HighCorrelations: []CorrelationPair{}}, nil
	}

	timer := utils.NewTimer("optimize_weights", o.log)
	defer timer.Stop()

	returns, err := AlignReturns(prices)
	if err != nil {
		return nil, fmt.Errorf("failed to align returns: %w", err)
	}
	data, err := returnsToDense(returns)
	if err != nil {
		return nil, err
	}

	cov, shrinkage, err := o.estimator.Estimate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate covariance: %w", err)
	}

	o.log.Debug().
		Int("assets", len(returns.Assets)).
		Int("observations", returns.Observations()).
		Str("estimator", o.estimator.Name()).
		Float64("shrinkage", shrinkage).
		Msg("Estimated covariance")

	sol, err := o.solve(cov)
	if err != nil {
		return nil, err
	}

	weights := make(domain.WeightVector, len(returns.Assets))
	for i, asset := range returns.Assets {
		weights[asset] = sol.weights[i]
	}

	result := &Result{
		Weights:              weights,
		Estimator:            o.estimator.Name(),
		Shrinkage:            shrinkage,
		Observations:         returns.Observations(),
		DiversificationRatio: DiversificationRatio(sol.weights, cov),
		Status:               sol.status,
		Iterations:           sol.iterations,
		HighCorrelations:     highCorrelations(cov, returns.Assets, HighCorrelationThreshold),
	}

	o.log.Info().
		Int("assets", len(weights)).
		Float64("diversification_ratio", result.DiversificationRatio).
		Str("status", result.Status).
		Int("iterations", result.Iterations).
		Int("high_correlations", len(result.HighCorrelations)).
		Msg("Computed diversification weights")

	return result, nil
}

// Optimize implements WeightOptimizer
func (o *DiversificationOptimizer) Optimize(cov *mat.SymDense) ([]float64, error) {
	sol, err := o.solve(cov)
	if err != nil {
		return nil, err
	}
	return sol.weights, nil
}

func (o *DiversificationOptimizer) solve(cov *mat.SymDense) (*solution, error) {
	n := cov.SymmetricDim()
	if n == 0 {
		return &solution{weights: []float64{}, status: "empty"}, nil
	}

	sigma := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: asset %d has variance %g", domain.ErrOptimizationFailed, i, v)
		}
		sigma[i] = math.Sqrt(v)
	}

	if n == 1 {
		return &solution{weights: []float64{1}, status: "trivial"}, nil
	}

	equal := make([]float64, n)
	for i := range equal {
		equal[i] = 1 / float64(n)
	}
	if !(mat.Inner(mat.NewVecDense(n, equal), cov, mat.NewVecDense(n, equal)) > 0) {
		return nil, fmt.Errorf("%w: zero portfolio variance at equal weights", domain.ErrOptimizationFailed)
	}

	obj := &drObjective{cov: cov, sigma: sigma}
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.grad,
	}
	settings := &optimize.Settings{
		GradientThreshold: o.settings.GradientTolerance,
		MajorIterations:   o.settings.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 25,
		},
	}

	// z = 0 is the equal-weight portfolio
	initial := make([]float64, n)
	result, err := optimize.Minimize(problem, initial, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOptimizationFailed, err)
	}

	status := result.Status.String()
	x := softmax(result.X)
	if err != nil || !acceptedStatus(result.Status) {
		// A stalled line search at a stationary point is still an optimum
		if !(isStall(err) && obj.satisfiesKKT(x)) {
			msg := status
			if err != nil {
				msg = fmt.Sprintf("%s: %v", status, err)
			}
			return nil, fmt.Errorf("%w: solver did not converge (%s)", domain.ErrOptimizationFailed, msg)
		}
		o.log.Debug().Str("status", status).Err(err).Msg("Solver stalled at a stationary point")
	}

	if v := quadForm(cov, x); !(v > 0) {
		return nil, fmt.Errorf("%w: zero portfolio variance at solution", domain.ErrOptimizationFailed)
	}

	weights, err := finalizeWeights(x)
	if err != nil {
		return nil, err
	}

	return &solution{
		weights:    weights,
		status:     status,
		iterations: result.Stats.MajorIterations,
	}, nil
}

func acceptedStatus(s optimize.Status) bool {
	return s == optimize.Success || s == optimize.GradientThreshold || s == optimize.FunctionConvergence
}

func isStall(err error) bool {
	return errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrLinesearcherFailure)
}

// finalizeWeights snaps negligible weights to zero and renormalises
func finalizeWeights(x []float64) ([]float64, error) {
	weights := make([]float64, len(x))
	for i, w := range x {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: non-finite weight at index %d", domain.ErrDegenerateInput, i)
		}
		if w >= weightSnapThreshold {
			weights[i] = math.Min(w, 1)
		}
	}

	sum := floats.Sum(weights)
	if sum > 0 {
		floats.Scale(1/sum, weights)
	}
	if math.Abs(floats.Sum(weights)-1) > weightSumTolerance {
		return nil, fmt.Errorf("%w: weights sum to %g", domain.ErrDegenerateInput, floats.Sum(weights))
	}
	return weights, nil
}

// DiversificationRatio returns (w·σ) / sqrt(wᵀΣw). It is invariant to scaling w
// and NaN when the portfolio variance is not positive.
func DiversificationRatio(w []float64, cov mat.Symmetric) float64 {
	n := cov.SymmetricDim()
	if len(w) != n || n == 0 {
		return math.NaN()
	}
	variance := quadForm(cov, w)
	if !(variance > 0) {
		return math.NaN()
	}
	weighted := 0.0
	for i := 0; i < n; i++ {
		weighted += w[i] * math.Sqrt(cov.At(i, i))
	}
	return weighted / math.Sqrt(variance)
}

// drObjective is -DR(softmax(z)) and its gradient with respect to z
type drObjective struct {
	cov   mat.Symmetric
	sigma []float64
}

func (d *drObjective) value(z []float64) float64 {
	w := softmax(z)
	variance := quadForm(d.cov, w)
	if !(variance > 0) {
		return math.Inf(1)
	}
	return -floats.Dot(w, d.sigma) / math.Sqrt(variance)
}

func (d *drObjective) grad(grad, z []float64) {
	w := softmax(z)
	g := d.weightGrad(w)
	// chain rule through softmax: ∂f/∂z_k = w_k (g_k - w·g)
	mean := floats.Dot(w, g)
	for k := range grad {
		grad[k] = w[k] * (g[k] - mean)
	}
}

// weightGrad is ∂(-DR)/∂w = -(σ/B - A Σw / B³) with A = w·σ, B = sqrt(wᵀΣw)
func (d *drObjective) weightGrad(w []float64) []float64 {
	n := len(w)
	sw := mat.NewVecDense(n, nil)
	sw.MulVec(d.cov, mat.NewVecDense(n, w))

	a := floats.Dot(w, d.sigma)
	b := math.Sqrt(floats.Dot(w, sw.RawVector().Data))

	g := make([]float64, n)
	if !(b > 0) {
		return g
	}
	b3 := b * b * b
	for i := 0; i < n; i++ {
		g[i] = -(d.sigma[i]/b - a*sw.AtVec(i)/b3)
	}
	return g
}

// satisfiesKKT checks first-order optimality on the simplex: the gradient is
// equal across held assets and not lower on assets left at zero.
func (d *drObjective) satisfiesKKT(w []float64) bool {
	g := d.weightGrad(w)
	lambda := floats.Dot(w, g)
	tol := kktTolerance * (1 + math.Abs(lambda))
	for i := range w {
		if w[i] > kktActiveWeight {
			if math.Abs(g[i]-lambda) > tol {
				return false
			}
		} else if g[i] < lambda-tol {
			return false
		}
	}
	return true
}

func softmax(z []float64) []float64 {
	w := make([]float64, len(z))
	if len(z) == 0 {
		return w
	}
	top := floats.Max(z)
	for i, v := range z {
		w[i] = math.Exp(v - top)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

func quadForm(cov mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}
