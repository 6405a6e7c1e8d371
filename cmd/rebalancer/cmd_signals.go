package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aristath/rebalancer/internal/modules/trend"
	"github.com/aristath/rebalancer/internal/report"
)

var signalsMetric string

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Evaluate the trend signal of every asset",
	Long: `Fit the robust trend of every non-excluded asset up to the date and print
the selected metric. Undefined signals are printed with defined=false.

Examples:
  rebalancer signals
  rebalancer signals --metric slope --format json`,
	RunE: runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().StringVar(&signalsMetric, "metric", "", "Metric (slope|intercept|r_squared|cagr), default: strategy metric")
}

type signalRow struct {
	Asset   string  `json:"asset" yaml:"asset" msgpack:"asset"`
	Defined bool    `json:"defined" yaml:"defined" msgpack:"defined"`
	Value   float64 `json:"value" yaml:"value" msgpack:"value"`
	Error   string  `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty"`
}

func runSignals(cmd *cobra.Command, args []string) error {
	outFormat, err := report.ParseFormat(format)
	if err != nil {
		return err
	}

	container, _, err := setup()
	if err != nil {
		return err
	}
	defer container.Close()

	policy := container.Controller.Config()
	metric := policy.EligibilityMetric
	if signalsMetric != "" {
		if metric, err = trend.ParseMetric(signalsMetric); err != nil {
			return err
		}
	}

	date, err := resolveDate(policy.RebalanceWeekday)
	if err != nil {
		return err
	}

	prices, err := container.PriceSource.History(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load price history: %w", err)
	}

	rows := make([]signalRow, 0, len(prices))
	for asset, series := range prices {
		if container.Controller.IsExcluded(asset) {
			continue
		}
		window := series.Until(date)
		if policy.LookbackDays > 0 {
			window = window.Since(date.AddDate(0, 0, -policy.LookbackDays))
		}

		row := signalRow{Asset: asset}
		value, ok, err := container.Estimator.Evaluate(window, metric)
		if err != nil {
			row.Error = err.Error()
		} else if ok {
			row.Defined = true
			row.Value = value
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Asset < rows[j].Asset })

	return report.Write(os.Stdout, rows, outFormat)
}
