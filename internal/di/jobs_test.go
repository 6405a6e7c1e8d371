package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/report"
)

// writeCSV writes a daily close history ending on the given date
func writeCSV(t *testing.T, dir, asset string, end time.Time, closes []float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	start := end.AddDate(0, 0, -(len(closes) - 1))
	for i, c := range closes {
		fmt.Fprintf(&b, "%s,0,0,0,%g,0\n", start.AddDate(0, 0, i).Format("2006-01-02"), c)
	}
	path := filepath.Join(dir, "COINBASE_SPOT_"+asset+"_USD.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func TestWeeklyRebalanceEndToEnd(t *testing.T) {
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	cfg := testConfig(t)
	cfg.OrdersDir = filepath.Join(cfg.DataDir, "orders")

	up := make([]float64, 40)
	down := make([]float64, 40)
	for i := range up {
		up[i] = 100 + float64(i) + float64(i%3)
		down[i] = 100 - float64(i)
	}
	writeCSV(t, cfg.DataDir, "BTC", monday, up)
	writeCSV(t, cfg.DataDir, "ETH", monday, down)
	writeCSV(t, cfg.DataDir, "USDT", monday, constant(40, 1))

	holdings := filepath.Join(cfg.DataDir, "holdings.yaml")
	require.NoError(t, os.WriteFile(holdings, []byte("cash: 1000\npositions:\n  ETH: 1\n  USDT: 50\nprices:\n  USDT: 1\n"), 0644))
	cfg.HoldingsFile = holdings

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)

	decision, err := container.RebalanceJob.RunAt(context.Background(), monday)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC"}, decision.Eligible)
	assert.InDelta(t, 1.0, decision.Weights["BTC"], 1e-9)
	assert.Equal(t, -1.0, decision.Orders["ETH"])
	assert.NotContains(t, decision.Orders, "USDT")
	assert.Equal(t, 50.0, decision.Targets["USDT"])
	// 1000 cash + 1 ETH at 61 + 50 USDT at 1
	assert.InDelta(t, 1111.0, decision.Capital, 1e-9)

	files, err := os.ReadDir(cfg.OrdersDir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(filepath.Join(cfg.OrdersDir, files[0].Name()))
	require.NoError(t, err)
	defer f.Close()
	written, err := report.ReadDecision(f, report.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, decision.RunID, written.RunID)

	assert.Same(t, decision, container.Controller.LastDecision())
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
