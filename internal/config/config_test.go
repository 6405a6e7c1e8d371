package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REBALANCER_DATA_DIR", "REBALANCER_PRICE_SOURCE", "REBALANCER_CSV_PREFIX", "REBALANCER_CSV_SUFFIX",
		"REBALANCER_HISTORY_DB", "REBALANCER_SCHEDULE", "REBALANCER_ORDERS_FORMAT", "REBALANCER_STRATEGY_FILE",
		"REBALANCER_EXCLUDED_ASSETS", "REBALANCER_HISTORY_CHECK_SCHEDULE", "REBALANCER_HISTORY_MAX_AGE",
		"GO_PORT", "DEV_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, PriceSourceCSV, cfg.PriceSource)
	assert.Equal(t, "COINBASE_SPOT_", cfg.CSVPrefix)
	assert.Equal(t, "_USD", cfg.CSVSuffix)
	assert.Equal(t, "0 0 1 * * MON", cfg.Schedule)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "0 30 0 * * *", cfg.HistoryCheck)
	assert.Equal(t, 72*time.Hour, cfg.HistoryAge)

	assert.Equal(t, "monday", cfg.Strategy.RebalanceWeekday)
	assert.Equal(t, "cagr", cfg.Strategy.EligibilityMetric)
	assert.Equal(t, 1.0, cfg.Strategy.Leverage)
	assert.Equal(t, "theil_sen", cfg.Strategy.Regression)
	assert.Equal(t, "ledoit_wolf", cfg.Strategy.Covariance)
	assert.Equal(t, 1000, cfg.Strategy.MaxIterations)
	assert.Equal(t, 1e-9, cfg.Strategy.GradientTolerance)
	assert.Nil(t, cfg.Strategy.ExcludedAssets)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("REBALANCER_DATA_DIR", dir)
	t.Setenv("REBALANCER_PRICE_SOURCE", "sqlite")
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("REBALANCER_EXCLUDED_ASSETS", "USDT, PAXG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, PriceSourceSQLite, cfg.PriceSource)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.HistoryDB)
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, []string{"USDT", "PAXG"}, cfg.Strategy.ExcludedAssets)
}

func TestLoad_InvalidPriceSource(t *testing.T) {
	clearEnv(t)
	t.Setenv("REBALANCER_PRICE_SOURCE", "ftp")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadStrategy_File(t *testing.T) {
	path := writeFile(t, "strategy.yaml", `
rebalance_weekday: friday
eligibility_metric: slope
min_signal: 0.5
excluded_assets: [USDT, BUSD]
leverage: 0.8
regression: siegel
lookback_days: 365
`)

	strategy, err := LoadStrategy(path)
	require.NoError(t, err)
	assert.Equal(t, "friday", strategy.RebalanceWeekday)
	assert.Equal(t, "slope", strategy.EligibilityMetric)
	assert.Equal(t, 0.5, strategy.MinSignal)
	assert.Equal(t, []string{"USDT", "BUSD"}, strategy.ExcludedAssets)
	assert.Equal(t, 0.8, strategy.Leverage)
	assert.Equal(t, "siegel", strategy.Regression)
	assert.Equal(t, "ledoit_wolf", strategy.Covariance)
	assert.Equal(t, 365, strategy.LookbackDays)
}

func TestLoadStrategy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "leverage above one", content: "leverage: 2\n"},
		{name: "unknown metric", content: "eligibility_metric: sharpe\n"},
		{name: "unknown covariance", content: "covariance: oas\n"},
		{name: "negative lookback", content: "lookback_days: -3\n"},
		{name: "malformed yaml", content: "leverage: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStrategy(writeFile(t, "strategy.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadStrategy_MissingFile(t *testing.T) {
	_, err := LoadStrategy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
