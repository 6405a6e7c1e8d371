// Package metrics exposes Prometheus collectors for the rebalancing engine.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// Registry holds the engine metrics on a private Prometheus registry
type Registry struct {
	registry *prometheus.Registry

	RebalanceDuration *prometheus.HistogramVec
	Rebalances        *prometheus.CounterVec
	EligibleAssets    prometheus.Gauge
	EvaluatedAssets   prometheus.Gauge
	Orders            prometheus.Gauge
	Turnover          prometheus.Gauge
	Shrinkage         prometheus.Gauge
	Diversification   prometheus.Gauge
	AssetWeight       *prometheus.GaugeVec
	LastSuccess       prometheus.Gauge
}

// NewRegistry creates and registers all collectors, including the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		RebalanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rebalancer_rebalance_duration_seconds",
				Help:    "Duration of a rebalance run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),

		Rebalances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalancer_rebalances_total",
				Help: "Total number of rebalance runs by result",
			},
			[]string{"result"},
		),

		EligibleAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_eligible_assets",
			Help: "Number of assets that passed the trend filter in the last run",
		}),

		EvaluatedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_evaluated_assets",
			Help: "Number of non-excluded assets evaluated in the last run",
		}),

		Orders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_orders",
			Help: "Number of orders produced by the last run",
		}),

		Turnover: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_turnover",
			Help: "Traded notional of the last run divided by capital",
		}),

		Shrinkage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_covariance_shrinkage",
			Help: "Shrinkage intensity used by the last optimisation",
		}),

		Diversification: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_diversification_ratio",
			Help: "Diversification ratio of the last target weights",
		}),

		AssetWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rebalancer_target_weight",
				Help: "Target weight per asset from the last run",
			},
			[]string{"asset"},
		),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_last_success_timestamp_seconds",
			Help: "Unix time of the last successful rebalance",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RebalanceDuration,
		r.Rebalances,
		r.EligibleAssets,
		r.EvaluatedAssets,
		r.Orders,
		r.Turnover,
		r.Shrinkage,
		r.Diversification,
		r.AssetWeight,
		r.LastSuccess,
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer returns the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveRebalance records one finished run
func (r *Registry) ObserveRebalance(decision *rebalancing.Decision, duration time.Duration, err error) {
	result := resultLabel(decision, err)
	r.RebalanceDuration.WithLabelValues(result).Observe(duration.Seconds())
	r.Rebalances.WithLabelValues(result).Inc()

	if err != nil || decision == nil {
		return
	}

	r.EligibleAssets.Set(float64(len(decision.Eligible)))
	r.EvaluatedAssets.Set(float64(len(decision.Signals)))
	r.Orders.Set(float64(len(decision.Orders)))
	r.Turnover.Set(turnover(decision))
	r.LastSuccess.Set(float64(time.Now().Unix()))

	r.AssetWeight.Reset()
	for asset, w := range decision.Weights {
		r.AssetWeight.WithLabelValues(asset).Set(w)
	}

	if decision.Diagnostics != nil {
		r.Shrinkage.Set(decision.Diagnostics.Shrinkage)
		r.Diversification.Set(decision.Diagnostics.DiversificationRatio)
	} else {
		r.Shrinkage.Set(0)
		r.Diversification.Set(0)
	}
}

func resultLabel(decision *rebalancing.Decision, err error) string {
	switch {
	case err == nil && decision != nil && decision.GoToCash:
		return "go_to_cash"
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrRebalanceInProgress):
		return "in_progress"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrOptimizationFailed), errors.Is(err, domain.ErrDegenerateInput):
		return "optimization_failed"
	default:
		return "error"
	}
}

// turnover is Σ|order| × price / capital over assets with a known price
func turnover(d *rebalancing.Decision) float64 {
	if d.Capital <= 0 {
		return 0
	}
	traded := 0.0
	for asset, units := range d.Orders {
		price, ok := d.Prices[asset]
		if !ok {
			continue
		}
		if units < 0 {
			units = -units
		}
		traded += units * price
	}
	return traded / d.Capital
}
