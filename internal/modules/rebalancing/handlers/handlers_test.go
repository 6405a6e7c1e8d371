package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/modules/optimization"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/trend"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	est := trend.NewEstimator(time.Monday, trend.TheilSen{}, logger)
	opt := optimization.NewDiversificationOptimizer(optimization.LedoitWolf{}, optimization.DefaultSettings(), logger)
	controller, err := rebalancing.NewController(rebalancing.DefaultConfig(), est, opt, logger)
	require.NoError(t, err)
	return NewHandler(controller, est, opt, logger)
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		setupTestHandler(t).RegisterRoutes(r)
	})
	return router
}

// dailyCloses returns n closes ending on Monday 2024-01-15
func dailyCloses(n int, start, perDay float64) []ObservationDTO {
	last := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	out := make([]ObservationDTO, n)
	for i := 0; i < n; i++ {
		d := last.AddDate(0, 0, i-(n-1))
		out[i] = ObservationDTO{Date: d.Format("2006-01-02"), Close: start + perDay*float64(i)}
	}
	return out
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return w, response
}

func TestRegisterRoutes(t *testing.T) {
	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		setupTestHandler(t).RegisterRoutes(router)
	})

	patterns := []string{}
	_ = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		patterns = append(patterns, method+" "+route)
		return nil
	})
	assert.Contains(t, patterns, "POST /rebalance/plan")
	assert.Contains(t, patterns, "GET /rebalance/status")
	assert.Contains(t, patterns, "POST /signals/evaluate")
	assert.Contains(t, patterns, "POST /optimizer/weights")
	assert.Contains(t, patterns, "POST /orders/diff")
}

func TestHandlePlan_GoToCash(t *testing.T) {
	router := setupRouter(t)

	w, response := doRequest(t, router, http.MethodPost, "/api/rebalance/plan", map[string]interface{}{
		"date": "2024-01-15",
		"prices": map[string]interface{}{
			"BTC": dailyCloses(20, 100, -1),
		},
		"holdings": map[string]float64{"BTC": 3, "USDT": 100},
		"capital":  1000,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, response, "metadata")

	data := response["data"].(map[string]interface{})
	assert.Equal(t, true, data["go_to_cash"])
	assert.Equal(t, map[string]interface{}{"BTC": -3.0}, data["orders"])
}

func TestHandlePlan_Validation(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "missing date", body: map[string]interface{}{"prices": map[string]interface{}{"BTC": dailyCloses(3, 1, 1)}}},
		{name: "bad date", body: map[string]interface{}{"date": "15/01/2024", "prices": map[string]interface{}{"BTC": dailyCloses(3, 1, 1)}}},
		{name: "negative capital", body: map[string]interface{}{"date": "2024-01-15", "capital": -1, "prices": map[string]interface{}{"BTC": dailyCloses(3, 1, 1)}}},
		{
			name: "non chronological",
			body: map[string]interface{}{
				"date": "2024-01-15",
				"prices": map[string]interface{}{"BTC": []ObservationDTO{
					{Date: "2024-01-15", Close: 1},
					{Date: "2024-01-14", Close: 2},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := doRequest(t, router, http.MethodPost, "/api/rebalance/plan", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, response, "error")
		})
	}
}

func TestHandleEvaluateSignals(t *testing.T) {
	router := setupRouter(t)

	w, response := doRequest(t, router, http.MethodPost, "/api/signals/evaluate", map[string]interface{}{
		"prices": map[string]interface{}{
			"BTC": dailyCloses(15, 100, 2),
			"ONE": dailyCloses(1, 100, 0),
		},
		"metric": "slope",
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, "slope", data["metric"])
	assert.Equal(t, "Monday", data["weekday"])

	signals := data["signals"].(map[string]interface{})
	btc := signals["BTC"].(map[string]interface{})
	assert.Equal(t, true, btc["defined"])
	assert.InDelta(t, 2.0, btc["value"].(float64), 1e-9)

	one := signals["ONE"].(map[string]interface{})
	assert.Equal(t, false, one["defined"])
}

func TestHandleEvaluateSignals_UnknownMetric(t *testing.T) {
	w, _ := doRequest(t, setupRouter(t), http.MethodPost, "/api/signals/evaluate", map[string]interface{}{
		"prices": map[string]interface{}{"BTC": dailyCloses(5, 1, 1)},
		"metric": "sortino",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleComputeWeights(t *testing.T) {
	router := setupRouter(t)

	w, response := doRequest(t, router, http.MethodPost, "/api/optimizer/weights", map[string]interface{}{
		"prices": map[string]interface{}{},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Empty(t, data["weights"])

	// A constant price has no variance
	w, response = doRequest(t, router, http.MethodPost, "/api/optimizer/weights", map[string]interface{}{
		"prices": map[string]interface{}{"USDX": dailyCloses(5, 1, 0)},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, response["error"], "optimization failed")
}

func TestHandleDiffOrders(t *testing.T) {
	w, response := doRequest(t, setupRouter(t), http.MethodPost, "/api/orders/diff", map[string]interface{}{
		"current": map[string]float64{"BTC": 1, "ETH": 2},
		"target":  map[string]float64{"BTC": 2, "ETH": 1},
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"BTC": 1.0, "ETH": -1.0}, data["orders"])
	assert.Equal(t, 2.0, data["count"])
}

func TestHandleStatus(t *testing.T) {
	router := setupRouter(t)

	w, response := doRequest(t, router, http.MethodGet, "/api/rebalance/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "idle", data["state"])
	assert.Equal(t, "Monday", data["rebalance_weekday"])
	assert.NotContains(t, data, "last_run_id")
}

func TestHandleInvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/diff", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	setupRouter(t).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
