package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/report"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// RegisterJobs builds the order sink and registers the scheduled jobs: the
// weekly rebalance, and the history check when prices come from SQLite. The
// scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sinks := scheduler.MultiSink{scheduler.NewLogSink(log)}
	if cfg.OrdersDir != "" {
		format, err := report.ParseFormat(cfg.OrdersFormat)
		if err != nil {
			return err
		}
		fileSink, err := scheduler.NewFileSink(cfg.OrdersDir, format, log)
		if err != nil {
			return fmt.Errorf("failed to create order file sink: %w", err)
		}
		sinks = append(sinks, fileSink)
	}
	container.OrderSink = sinks

	container.RebalanceJob = scheduler.NewRebalanceJob(
		container.Controller,
		container.PriceSource,
		container.Holdings,
		container.OrderSink,
		log,
	)

	container.Scheduler = scheduler.New(log)
	if err := container.Scheduler.AddJob(cfg.Schedule, container.RebalanceJob); err != nil {
		return err
	}

	if container.HistoryDB != nil && cfg.HistoryCheck != "" {
		container.HistoryCheckJob = scheduler.NewCheckHistoryDBJob(container.HistoryDB, cfg.HistoryAge, log)
		if err := container.Scheduler.AddJob(cfg.HistoryCheck, container.HistoryCheckJob); err != nil {
			return err
		}
	}

	return nil
}
