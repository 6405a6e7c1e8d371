// Package rebalancing turns price histories and holdings into a rebalance decision.
package rebalancing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/trend"
)

// DefaultExcludedAssets are stable coins, fiat proxies and gold tokens. They act
// as the quote currency and never take part in a rebalance.
func DefaultExcludedAssets() []string {
	return []string{
		"USDT", "USDC", "BUSD", "DAI", "TUSD", "FRAX", "USDP", "GUSD", "PYUSD",
		"EURS", "EUROC", "sEUR", "XSGD", "CNHT", "BRZ", "TRYB", "JPYC",
		"XAUT", "PAXG", "HUSD", "USDN", "UST", "USTC", "AMPL", "FEI", "sUSD",
	}
}

// Config holds the policy of the controller
type Config struct {
	RebalanceWeekday  time.Weekday
	EligibilityMetric trend.Metric
	// An asset is eligible when its metric is strictly greater than MinSignal
	MinSignal      float64
	ExcludedAssets []string
	// Fraction of capital to invest, in (0, 1]
	Leverage float64
	// History window in days, 0 for the full history
	LookbackDays int
}

// DefaultConfig returns the weekly Monday policy: hold assets with a positive trend growth
func DefaultConfig() Config {
	return Config{
		RebalanceWeekday:  time.Monday,
		EligibilityMetric: trend.MetricCAGR,
		MinSignal:         0,
		ExcludedAssets:    DefaultExcludedAssets(),
		Leverage:          1,
	}
}

// Validate checks the policy
func (c Config) Validate() error {
	if !c.EligibilityMetric.Valid() {
		return fmt.Errorf("%w: unknown eligibility metric %q", domain.ErrInvalidArgument, c.EligibilityMetric)
	}
	if c.RebalanceWeekday < time.Sunday || c.RebalanceWeekday > time.Saturday {
		return fmt.Errorf("%w: invalid rebalance weekday %d", domain.ErrInvalidArgument, c.RebalanceWeekday)
	}
	if !(c.Leverage > 0 && c.Leverage <= 1) {
		return fmt.Errorf("%w: leverage must be in (0, 1], got %g", domain.ErrInvalidArgument, c.Leverage)
	}
	if math.IsNaN(c.MinSignal) {
		return fmt.Errorf("%w: min signal is NaN", domain.ErrInvalidArgument)
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("%w: lookback days must not be negative", domain.ErrInvalidArgument)
	}
	return nil
}

// ParseWeekday resolves a weekday name such as "monday" or "Mon"
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: unknown weekday %q", domain.ErrInvalidArgument, name)
}
