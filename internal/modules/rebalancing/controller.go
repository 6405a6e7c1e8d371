package rebalancing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/optimization"
	"github.com/aristath/rebalancer/internal/modules/sizing"
	"github.com/aristath/rebalancer/internal/modules/trend"
)

// State of the controller
type State int32

const (
	StateIdle State = iota
	StateRebalancing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRebalancing:
		return "rebalancing"
	default:
		return "unknown"
	}
}

// SignalEvaluator fits a trend signal for one series. A nil result means undefined.
type SignalEvaluator interface {
	Signal(series domain.PriceSeries) (*domain.SignalResult, error)
}

// WeightComputer computes target weights from the eligible histories
type WeightComputer interface {
	Run(prices map[string]domain.PriceSeries) (*optimization.Result, error)
}

// Recorder observes finished rebalances
type Recorder interface {
	ObserveRebalance(decision *Decision, duration time.Duration, err error)
}

// Request is the input of one rebalance
type Request struct {
	Date     time.Time
	Prices   map[string]domain.PriceSeries
	Holdings domain.HoldingsMap
	Capital  float64
	// CurrentPrices overrides the last close on or before Date per asset
	CurrentPrices map[string]float64
}

// AssetSignal records why an asset was or was not eligible
type AssetSignal struct {
	Asset    string               `json:"asset" msgpack:"asset" yaml:"asset"`
	Defined  bool                 `json:"defined" msgpack:"defined" yaml:"defined"`
	Value    float64              `json:"value" msgpack:"value" yaml:"value"`
	Eligible bool                 `json:"eligible" msgpack:"eligible" yaml:"eligible"`
	Reason   string               `json:"reason,omitempty" msgpack:"reason,omitempty" yaml:"reason,omitempty"`
	Signal   *domain.SignalResult `json:"signal,omitempty" msgpack:"signal,omitempty" yaml:"signal,omitempty"`
}

// Decision is the outcome of one rebalance
type Decision struct {
	RunID       string               `json:"run_id" msgpack:"run_id" yaml:"run_id"`
	Date        time.Time            `json:"date" msgpack:"date" yaml:"date"`
	Metric      trend.Metric         `json:"metric" msgpack:"metric" yaml:"metric"`
	Capital     float64              `json:"capital" msgpack:"capital" yaml:"capital"`
	Signals     []AssetSignal        `json:"signals" msgpack:"signals" yaml:"signals"`
	Eligible    []string             `json:"eligible" msgpack:"eligible" yaml:"eligible"`
	Weights     domain.WeightVector  `json:"weights" msgpack:"weights" yaml:"weights"`
	Prices      map[string]float64   `json:"prices" msgpack:"prices" yaml:"prices"`
	Targets     domain.HoldingsMap   `json:"targets" msgpack:"targets" yaml:"targets"`
	Orders      domain.OrderMap      `json:"orders" msgpack:"orders" yaml:"orders"`
	GoToCash    bool                 `json:"go_to_cash" msgpack:"go_to_cash" yaml:"go_to_cash"`
	Diagnostics *optimization.Result `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Reasons an asset is left out of the universe
const (
	ReasonUndefined       = "undefined"
	ReasonEstimationError = "estimation_error"
	ReasonBelowThreshold  = "below_threshold"
)

// Controller runs the rebalance pipeline: trend gating, weight optimisation,
// unit conversion and order diff. It is Idle or Rebalancing; a call made while
// Rebalancing fails with ErrRebalanceInProgress.
type Controller struct {
	cfg       Config
	estimator SignalEvaluator
	optimizer WeightComputer
	excluded  map[string]bool
	recorder  Recorder
	state     atomic.Int32

	mu   sync.RWMutex
	last *Decision

	log zerolog.Logger
}

// NewController creates a controller
func NewController(cfg Config, estimator SignalEvaluator, optimizer WeightComputer, log zerolog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil || optimizer == nil {
		return nil, fmt.Errorf("%w: estimator and optimizer are required", domain.ErrInvalidArgument)
	}
	excluded := make(map[string]bool, len(cfg.ExcludedAssets))
	for _, asset := range cfg.ExcludedAssets {
		excluded[asset] = true
	}
	return &Controller{
		cfg:       cfg,
		estimator: estimator,
		optimizer: optimizer,
		excluded:  excluded,
		log:       log.With().Str("component", "rebalance_controller").Logger(),
	}, nil
}

// SetRecorder sets the observer notified after every rebalance
func (c *Controller) SetRecorder(r Recorder) {
	c.recorder = r
}

// Config returns the controller policy
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// LastDecision returns the most recent successful decision, or nil
func (c *Controller) LastDecision() *Decision {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// IsExcluded reports whether asset is never rebalanced
func (c *Controller) IsExcluded(asset string) bool {
	return c.excluded[asset]
}

// Rebalance runs the pipeline for req.Date. Per-asset estimation problems only
// exclude that asset; optimisation and sizing failures abort the run and no
// decision is returned.
func (c *Controller) Rebalance(ctx context.Context, req Request) (*Decision, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRebalancing)) {
		return nil, domain.ErrRebalanceInProgress
	}
	defer c.state.Store(int32(StateIdle))

	start := time.Now()
	decision, err := c.run(ctx, req)
	if c.recorder != nil {
		c.recorder.ObserveRebalance(decision, time.Since(start), err)
	}
	if err != nil {
		c.log.Error().Err(err).Time("date", req.Date).Msg("Rebalance aborted")
		return nil, err
	}

	c.mu.Lock()
	c.last = decision
	c.mu.Unlock()

	c.log.Info().
		Str("run_id", decision.RunID).
		Time("date", decision.Date).
		Int("eligible", len(decision.Eligible)).
		Int("orders", len(decision.Orders)).
		Bool("go_to_cash", decision.GoToCash).
		Dur("duration", time.Since(start)).
		Msg("Rebalance completed")

	return decision, nil
}

func (c *Controller) run(ctx context.Context, req Request) (*Decision, error) {
	if math.IsNaN(req.Capital) || math.IsInf(req.Capital, 0) || req.Capital < 0 {
		return nil, fmt.Errorf("%w: capital must be a non-negative number, got %g", domain.ErrInvalidArgument, req.Capital)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision := &Decision{
		RunID:    uuid.New().String(),
		Date:     req.Date,
		Metric:   c.cfg.EligibilityMetric,
		Capital:  req.Capital,
		Eligible: []string{},
		Weights:  domain.WeightVector{},
		Prices:   map[string]float64{},
	}

	// 1. trend gating
	windows := make(map[string]domain.PriceSeries)
	for _, asset := range sortedAssets(req.Prices) {
		if c.excluded[asset] {
			continue
		}
		window := c.window(req.Prices[asset], req.Date)
		signal := c.evaluate(asset, window)
		decision.Signals = append(decision.Signals, signal)
		if signal.Eligible {
			decision.Eligible = append(decision.Eligible, asset)
			windows[asset] = window
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. empty universe: liquidate everything that is not excluded
	if len(windows) == 0 {
		decision.GoToCash = true
		decision.Targets = c.carryExcluded(req.Holdings)
		for asset := range req.Holdings {
			if !c.excluded[asset] {
				decision.Targets[asset] = 0
			}
		}
		decision.Orders = sizing.Diff(req.Holdings, decision.Targets)
		c.log.Info().Time("date", req.Date).Msg("No eligible assets, going to cash")
		return decision, nil
	}

	// 3. weights
	result, err := c.optimizer.Run(windows)
	if err != nil {
		return nil, fmt.Errorf("failed to compute weights: %w", err)
	}
	decision.Weights = result.Weights
	decision.Diagnostics = result

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. weights to units
	for _, asset := range decision.Weights.Assets() {
		price, ok := req.CurrentPrices[asset]
		if !ok {
			price, ok = windows[asset].ValueAt(req.Date)
		}
		if ok {
			decision.Prices[asset] = price
		}
	}
	units, err := sizing.TargetUnits(decision.Weights, req.Capital*c.cfg.Leverage, decision.Prices)
	if err != nil {
		return nil, fmt.Errorf("failed to size targets: %w", err)
	}

	decision.Targets = c.carryExcluded(req.Holdings)
	for asset := range req.Holdings {
		if !c.excluded[asset] {
			decision.Targets[asset] = 0
		}
	}
	for asset, u := range units {
		decision.Targets[asset] = u
	}

	// 5. orders
	decision.Orders = sizing.Diff(req.Holdings, decision.Targets)
	return decision, nil
}

// window truncates a series to the rebalance date and the configured lookback
func (c *Controller) window(series domain.PriceSeries, date time.Time) domain.PriceSeries {
	w := series.Until(date)
	if c.cfg.LookbackDays > 0 {
		w = w.Since(date.AddDate(0, 0, -c.cfg.LookbackDays))
	}
	return w
}

func (c *Controller) evaluate(asset string, series domain.PriceSeries) AssetSignal {
	signal := AssetSignal{Asset: asset}

	result, err := c.estimator.Signal(series)
	if err != nil {
		c.log.Warn().Err(err).Str("asset", asset).Msg("Trend estimation failed, asset excluded")
		signal.Reason = ReasonEstimationError
		return signal
	}

	value, ok := trend.MetricValue(result, c.cfg.EligibilityMetric)
	signal.Signal = result
	if !ok {
		signal.Reason = ReasonUndefined
		return signal
	}

	signal.Defined = true
	signal.Value = value
	if value > c.cfg.MinSignal {
		signal.Eligible = true
	} else {
		signal.Reason = ReasonBelowThreshold
	}
	return signal
}

// carryExcluded copies holdings of excluded assets so they never produce orders
func (c *Controller) carryExcluded(holdings domain.HoldingsMap) domain.HoldingsMap {
	targets := make(domain.HoldingsMap)
	for asset, units := range holdings {
		if c.excluded[asset] {
			targets[asset] = units
		}
	}
	return targets
}

func sortedAssets(prices map[string]domain.PriceSeries) []string {
	assets := make([]string, 0, len(prices))
	for asset := range prices {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
