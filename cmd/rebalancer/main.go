// Package main is the rebalancer command line. It runs the rebalance pipeline
// once against the configured price history and prints the result.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/di"
	"github.com/aristath/rebalancer/internal/scheduler"
	"github.com/aristath/rebalancer/pkg/logger"
)

var (
	logLevel string
	dateFlag string
	format   string
)

var rootCmd = &cobra.Command{
	Use:   "rebalancer",
	Short: "Trend-gated maximum diversification rebalancer",
	Long: `rebalancer keeps the assets whose robust price trend is rising, weights
them to maximise the diversification ratio and diffs the resulting unit
targets against current holdings.

Configuration is read from the environment (REBALANCER_*) and the optional
strategy file, the same way the server reads it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&dateFlag, "date", "", "Rebalance date YYYY-MM-DD (default: latest rebalance weekday)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table|json|yaml|msgpack)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and wires the container. The scheduler is
// registered but never started.
func setup() (*di.Container, zerolog.Logger, error) {
	log := logger.New(logger.Config{
		Level:  logLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	cfg, err := config.Load()
	if err != nil {
		return nil, log, fmt.Errorf("failed to load configuration: %w", err)
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		return nil, log, err
	}
	return container, log, nil
}

// resolveDate parses --date or falls back to the latest rebalance weekday
func resolveDate(weekday time.Weekday) (time.Time, error) {
	if dateFlag == "" {
		return scheduler.RebalanceDate(time.Now(), weekday), nil
	}
	date, err := time.ParseInLocation("2006-01-02", dateFlag, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", dateFlag, err)
	}
	return date, nil
}
