package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/marketdata"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/portfolio"
)

// ErrStaleHistory is returned when no asset has a price on the rebalance date.
// Rebalancing on stale data would read every signal as undefined and liquidate.
var ErrStaleHistory = errors.New("price history is stale")

const defaultJobTimeout = 5 * time.Minute

// RebalanceDate returns UTC midnight of the latest weekday on or before now
func RebalanceDate(now time.Time, weekday time.Weekday) time.Time {
	day := now.UTC().Truncate(24 * time.Hour)
	back := (int(day.Weekday()) - int(weekday) + 7) % 7
	return day.AddDate(0, 0, -back)
}

// BuildRequest loads prices and the account snapshot and values the account
// at the last close on or before date
func BuildRequest(ctx context.Context, date time.Time, source marketdata.Source, provider portfolio.Provider) (rebalancing.Request, error) {
	prices, err := source.History(ctx)
	if err != nil {
		return rebalancing.Request{}, fmt.Errorf("failed to load price history: %w", err)
	}
	snap, err := provider.Snapshot(ctx)
	if err != nil {
		return rebalancing.Request{}, fmt.Errorf("failed to load holdings: %w", err)
	}

	holdings := snap.Holdings()
	latest := make(map[string]float64, len(holdings))
	for asset := range holdings {
		if series, ok := prices[asset]; ok {
			if v, ok := series.ValueAt(date); ok {
				latest[asset] = v
			}
		}
	}

	capital, err := snap.Capital(latest)
	if err != nil {
		return rebalancing.Request{}, err
	}

	return rebalancing.Request{
		Date:          date,
		Prices:        prices,
		Holdings:      holdings,
		Capital:       capital,
		CurrentPrices: snap.Prices,
	}, nil
}

// RebalanceJob is the weekly live run: load data, rebalance, submit orders
type RebalanceJob struct {
	controller *rebalancing.Controller
	source     marketdata.Source
	provider   portfolio.Provider
	sink       OrderSink
	timeout    time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewRebalanceJob creates the weekly rebalance job
func NewRebalanceJob(
	controller *rebalancing.Controller,
	source marketdata.Source,
	provider portfolio.Provider,
	sink OrderSink,
	log zerolog.Logger,
) *RebalanceJob {
	return &RebalanceJob{
		controller: controller,
		source:     source,
		provider:   provider,
		sink:       sink,
		timeout:    defaultJobTimeout,
		now:        time.Now,
		log:        log.With().Str("job", "weekly_rebalance").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "weekly_rebalance"
}

// Run rebalances as of the latest rebalance weekday
func (j *RebalanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	date := RebalanceDate(j.now(), j.controller.Config().RebalanceWeekday)
	_, err := j.RunAt(ctx, date)
	return err
}

// RunAt rebalances as of date and submits the decision to the sink
func (j *RebalanceJob) RunAt(ctx context.Context, date time.Time) (*rebalancing.Decision, error) {
	req, err := BuildRequest(ctx, date, j.source, j.provider)
	if err != nil {
		return nil, err
	}
	if !observedOn(req.Prices, date) {
		return nil, fmt.Errorf("%w: no close on %s", ErrStaleHistory, date.Format("2006-01-02"))
	}

	decision, err := j.controller.Rebalance(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := j.sink.Submit(ctx, decision); err != nil {
		return decision, fmt.Errorf("failed to submit orders: %w", err)
	}

	j.log.Info().
		Str("run_id", decision.RunID).
		Float64("capital", req.Capital).
		Int("orders", len(decision.Orders)).
		Msg("Weekly rebalance submitted")

	return decision, nil
}

func observedOn(prices map[string]domain.PriceSeries, date time.Time) bool {
	for _, series := range prices {
		if series.Len() == 0 {
			continue
		}
		prefix := series.Until(date)
		if prefix.Len() > 0 && prefix.Last().Date.Equal(date) {
			return true
		}
	}
	return false
}
