package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/optimization"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

func TestResultLabel(t *testing.T) {
	tests := []struct {
		name     string
		decision *rebalancing.Decision
		err      error
		expected string
	}{
		{name: "success", decision: &rebalancing.Decision{}, expected: "success"},
		{name: "go to cash", decision: &rebalancing.Decision{GoToCash: true}, expected: "go_to_cash"},
		{name: "in progress", err: domain.ErrRebalanceInProgress, expected: "in_progress"},
		{name: "invalid", err: fmt.Errorf("wrap: %w", domain.ErrInvalidArgument), expected: "invalid_argument"},
		{name: "solver", err: fmt.Errorf("wrap: %w", domain.ErrOptimizationFailed), expected: "optimization_failed"},
		{name: "degenerate", err: domain.ErrDegenerateInput, expected: "optimization_failed"},
		{name: "other", err: errors.New("disk"), expected: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resultLabel(tt.decision, tt.err))
		})
	}
}

func TestObserveRebalance_Success(t *testing.T) {
	r := NewRegistry()
	d := &rebalancing.Decision{
		Capital:  1000,
		Signals:  make([]rebalancing.AssetSignal, 3),
		Eligible: []string{"BTC", "ETH"},
		Weights:  domain.WeightVector{"BTC": 0.4, "ETH": 0.6},
		Prices:   map[string]float64{"BTC": 100, "ETH": 10},
		Orders:   domain.OrderMap{"BTC": 2, "ETH": -30},
		Diagnostics: &optimization.Result{
			Shrinkage:            0.25,
			DiversificationRatio: 1.3,
		},
	}

	r.ObserveRebalance(d, 50*time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Rebalances.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.EligibleAssets))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.EvaluatedAssets))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Orders))
	assert.InDelta(t, 0.5, testutil.ToFloat64(r.Turnover), 1e-12)
	assert.Equal(t, 0.25, testutil.ToFloat64(r.Shrinkage))
	assert.Equal(t, 0.6, testutil.ToFloat64(r.AssetWeight.WithLabelValues("ETH")))
	assert.Greater(t, testutil.ToFloat64(r.LastSuccess), 0.0)
}

func TestObserveRebalance_FailureKeepsLastState(t *testing.T) {
	r := NewRegistry()
	r.ObserveRebalance(&rebalancing.Decision{Eligible: []string{"BTC"}}, time.Millisecond, nil)
	r.ObserveRebalance(nil, time.Millisecond, domain.ErrOptimizationFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Rebalances.WithLabelValues("optimization_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EligibleAssets))

	count, err := testutil.GatherAndCount(r.Gatherer(), "rebalancer_rebalances_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveRebalance(&rebalancing.Decision{}, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rebalancer_rebalances_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
