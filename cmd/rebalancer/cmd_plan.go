package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/rebalancer/internal/portfolio"
	"github.com/aristath/rebalancer/internal/report"
	"github.com/aristath/rebalancer/internal/scheduler"
)

var (
	planCapital  float64
	planHoldings string
	planSubmit   bool
	planOutput   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute a rebalance decision",
	Long: `Compute the rebalance decision for a date: trend signals, eligible
assets, weights, unit targets and orders.

Examples:
  rebalancer plan
  rebalancer plan --date 2024-01-15 --capital 10000
  rebalancer plan --holdings account.yaml --format json --output plan.json
  rebalancer plan --submit`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Float64Var(&planCapital, "capital", 0, "Capital to allocate (default: value of the holdings snapshot)")
	planCmd.Flags().StringVar(&planHoldings, "holdings", "", "Holdings snapshot file (overrides REBALANCER_HOLDINGS_FILE)")
	planCmd.Flags().BoolVar(&planSubmit, "submit", false, "Submit the decision to the configured order sinks")
	planCmd.Flags().StringVar(&planOutput, "output", "", "Output file (default: stdout)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	outFormat, err := report.ParseFormat(format)
	if err != nil {
		return err
	}

	container, log, err := setup()
	if err != nil {
		return err
	}
	defer container.Close()

	date, err := resolveDate(container.Controller.Config().RebalanceWeekday)
	if err != nil {
		return err
	}

	provider := container.Holdings
	if planHoldings != "" {
		provider = portfolio.NewFileProvider(planHoldings, log)
	}

	ctx := context.Background()
	req, err := scheduler.BuildRequest(ctx, date, container.PriceSource, provider)
	if err != nil {
		return err
	}
	if planCapital > 0 {
		req.Capital = planCapital
	}

	decision, err := container.Controller.Rebalance(ctx, req)
	if err != nil {
		return fmt.Errorf("rebalance failed: %w", err)
	}

	if planSubmit {
		if err := container.OrderSink.Submit(ctx, decision); err != nil {
			return err
		}
	}

	out := os.Stdout
	if planOutput != "" {
		f, err := os.Create(planOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return report.Write(out, decision, outFormat)
}
