package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/marketdata"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/optimization"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/rebalancing/handlers"
	"github.com/aristath/rebalancer/internal/modules/trend"
	"github.com/aristath/rebalancer/internal/portfolio"
)

// DefaultCapital is the account size assumed when no holdings file is configured
const DefaultCapital = 100000.0

// RebalancingConfig converts the strategy file into the controller policy.
// A nil excluded list selects the built-in stable asset list; an empty list
// excludes nothing.
func RebalancingConfig(s config.StrategyConfig) (rebalancing.Config, error) {
	weekday, err := rebalancing.ParseWeekday(s.RebalanceWeekday)
	if err != nil {
		return rebalancing.Config{}, err
	}
	metric, err := trend.ParseMetric(s.EligibilityMetric)
	if err != nil {
		return rebalancing.Config{}, err
	}

	excluded := s.ExcludedAssets
	if excluded == nil {
		excluded = rebalancing.DefaultExcludedAssets()
	}

	cfg := rebalancing.Config{
		RebalanceWeekday:  weekday,
		EligibilityMetric: metric,
		MinSignal:         s.MinSignal,
		ExcludedAssets:    excluded,
		Leverage:          s.Leverage,
		LookbackDays:      s.LookbackDays,
	}
	return cfg, cfg.Validate()
}

// InitializeServices builds the engine and its data providers
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	policy, err := RebalancingConfig(cfg.Strategy)
	if err != nil {
		return fmt.Errorf("invalid strategy: %w", err)
	}

	// Market data
	switch cfg.PriceSource {
	case config.PriceSourceSQLite:
		container.PriceSource = marketdata.NewSQLiteSource(container.HistoryDB, policy.ExcludedAssets, log)
	default:
		container.PriceSource = marketdata.NewCSVSource(marketdata.CSVConfig{
			Dir:            cfg.DataDir,
			Prefix:         cfg.CSVPrefix,
			Suffix:         cfg.CSVSuffix,
			Column:         "close",
			ExcludedAssets: policy.ExcludedAssets,
		}, log)
	}

	// Holdings
	if cfg.HoldingsFile != "" {
		container.Holdings = portfolio.NewFileProvider(cfg.HoldingsFile, log)
	} else {
		log.Warn().Float64("capital", DefaultCapital).Msg("No holdings file configured, assuming an all-cash account")
		container.Holdings = portfolio.NewStaticProvider(DefaultCapital)
	}

	// Engine
	fitter, err := trend.NewFitter(cfg.Strategy.Regression)
	if err != nil {
		return err
	}
	container.Estimator = trend.NewEstimator(policy.RebalanceWeekday, fitter, log)

	covariance, err := optimization.NewCovarianceEstimator(cfg.Strategy.Covariance)
	if err != nil {
		return err
	}
	container.Optimizer = optimization.NewDiversificationOptimizer(covariance, optimization.Settings{
		MaxIterations:     cfg.Strategy.MaxIterations,
		GradientTolerance: cfg.Strategy.GradientTolerance,
	}, log)

	controller, err := rebalancing.NewController(policy, container.Estimator, container.Optimizer, log)
	if err != nil {
		return err
	}
	container.Controller = controller

	// Metrics observe every rebalance, whichever surface triggered it
	container.Metrics = metrics.NewRegistry()
	container.Controller.SetRecorder(container.Metrics)

	container.RebalanceHandler = handlers.NewHandler(container.Controller, container.Estimator, container.Optimizer, log)

	log.Info().
		Str("weekday", policy.RebalanceWeekday.String()).
		Str("metric", string(policy.EligibilityMetric)).
		Float64("min_signal", policy.MinSignal).
		Int("excluded_assets", len(policy.ExcludedAssets)).
		Str("regression", fitter.Name()).
		Str("covariance", covariance.Name()).
		Msg("Rebalancing engine initialized")

	return nil
}
