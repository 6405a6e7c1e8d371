package domain

import "errors"

var (
	// ErrInvalidArgument is returned for malformed input: unknown metric names,
	// non-chronological series, missing prices for weighted assets.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientData marks a fit that needs more observations.
	// The trend estimator reports it as an undefined signal rather than an error.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrOptimizationFailed is returned when the solver does not converge or the
	// covariance is degenerate (zero-variance asset or portfolio).
	ErrOptimizationFailed = errors.New("optimization failed")

	// ErrDegenerateInput is returned when a supposedly successful solve yields
	// weights that do not sum to 1. An empty eligible universe is not an error.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrRebalanceInProgress is returned when a rebalance is triggered while
	// another one is still running on the same controller.
	ErrRebalanceInProgress = errors.New("rebalance already in progress")
)
