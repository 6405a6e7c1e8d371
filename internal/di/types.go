// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived component of the rebalancer and is the
// single source of truth for the server, the CLI and the scheduler.
package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/marketdata"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/optimization"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/rebalancing/handlers"
	"github.com/aristath/rebalancer/internal/modules/trend"
	"github.com/aristath/rebalancer/internal/portfolio"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	// Databases (nil when prices come from CSV files)
	HistoryDB *database.DB

	// Data providers
	PriceSource marketdata.Source
	Holdings    portfolio.Provider

	// Engine
	Estimator  *trend.Estimator
	Optimizer  *optimization.DiversificationOptimizer
	Controller *rebalancing.Controller

	// Outer surfaces
	Metrics          *metrics.Registry
	OrderSink        scheduler.OrderSink
	Scheduler        *scheduler.Scheduler
	RebalanceJob     *scheduler.RebalanceJob
	HistoryCheckJob  *scheduler.CheckHistoryDBJob // nil without a history database
	RebalanceHandler *handlers.Handler
}

// Close releases the databases held by the container
func (c *Container) Close() error {
	if c.HistoryDB != nil {
		return c.HistoryDB.Close()
	}
	return nil
}
