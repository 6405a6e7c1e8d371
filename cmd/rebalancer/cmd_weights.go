package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/rebalancer/internal/report"
	"github.com/aristath/rebalancer/internal/scheduler"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Compute maximum diversification weights of the eligible assets",
	Long: `Gate the universe on the trend signal and print the optimiser result:
weights, diversification ratio, shrinkage and correlation warnings.

Examples:
  rebalancer weights --date 2024-01-15 --format yaml`,
	RunE: runWeights,
}

func init() {
	rootCmd.AddCommand(weightsCmd)
}

func runWeights(cmd *cobra.Command, args []string) error {
	outFormat, err := report.ParseFormat(format)
	if err != nil {
		return err
	}

	container, _, err := setup()
	if err != nil {
		return err
	}
	defer container.Close()

	date, err := resolveDate(container.Controller.Config().RebalanceWeekday)
	if err != nil {
		return err
	}

	ctx := context.Background()
	req, err := scheduler.BuildRequest(ctx, date, container.PriceSource, container.Holdings)
	if err != nil {
		return err
	}

	decision, err := container.Controller.Rebalance(ctx, req)
	if err != nil {
		return fmt.Errorf("rebalance failed: %w", err)
	}
	if decision.GoToCash {
		fmt.Fprintln(os.Stderr, "No eligible assets, the portfolio goes to cash")
		return report.Write(os.Stdout, decision.Weights, outFormat)
	}
	return report.Write(os.Stdout, decision.Diagnostics, outFormat)
}
