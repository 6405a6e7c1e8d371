// Package handlers provides HTTP handlers for the rebalancing engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/optimization"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/sizing"
	"github.com/aristath/rebalancer/internal/modules/trend"
)

// Handler handles rebalancing engine HTTP requests
type Handler struct {
	controller *rebalancing.Controller
	estimator  *trend.Estimator
	optimizer  *optimization.DiversificationOptimizer
	log        zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(
	controller *rebalancing.Controller,
	estimator *trend.Estimator,
	optimizer *optimization.DiversificationOptimizer,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		controller: controller,
		estimator:  estimator,
		optimizer:  optimizer,
		log:        log.With().Str("handler", "rebalancing").Logger(),
	}
}

// SignalResponse is the evaluated metric of one asset
type SignalResponse struct {
	Defined bool                 `json:"defined"`
	Value   float64              `json:"value"`
	Signal  *domain.SignalResult `json:"signal,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// HandlePlan handles POST /api/rebalance/plan
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	prices, err := toSeries(req.Prices)
	if err != nil {
		h.writeError(w, err)
		return
	}

	decision, err := h.controller.Rebalance(r.Context(), rebalancing.Request{
		Date:          date,
		Prices:        prices,
		Holdings:      domain.HoldingsMap(req.Holdings),
		Capital:       req.Capital,
		CurrentPrices: req.CurrentPrices,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, decision)
}

// HandleStatus handles GET /api/rebalance/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.controller.Config()
	data := map[string]interface{}{
		"state":              h.controller.State().String(),
		"rebalance_weekday":  cfg.RebalanceWeekday.String(),
		"eligibility_metric": cfg.EligibilityMetric,
		"min_signal":         cfg.MinSignal,
		"leverage":           cfg.Leverage,
	}
	if last := h.controller.LastDecision(); last != nil {
		data["last_run_id"] = last.RunID
		data["last_date"] = last.Date.Format("2006-01-02")
		data["last_orders"] = len(last.Orders)
		data["last_go_to_cash"] = last.GoToCash
	}

	h.writeData(w, http.StatusOK, data)
}

// HandleEvaluateSignals handles POST /api/signals/evaluate
func (h *Handler) HandleEvaluateSignals(w http.ResponseWriter, r *http.Request) {
	var req EvaluateSignalsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	metric, err := trend.ParseMetric(req.Metric)
	if err != nil {
		h.writeError(w, err)
		return
	}
	prices, err := toSeries(req.Prices)
	if err != nil {
		h.writeError(w, err)
		return
	}

	signals := make(map[string]SignalResponse, len(prices))
	for asset, series := range prices {
		result, err := h.estimator.Signal(series)
		if err != nil {
			signals[asset] = SignalResponse{Error: err.Error()}
			continue
		}
		value, ok := trend.MetricValue(result, metric)
		signals[asset] = SignalResponse{Defined: ok, Value: value, Signal: result}
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"metric":  metric,
		"weekday": h.estimator.Weekday().String(),
		"signals": signals,
	})
}

// HandleComputeWeights handles POST /api/optimizer/weights
func (h *Handler) HandleComputeWeights(w http.ResponseWriter, r *http.Request) {
	var req ComputeWeightsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	prices, err := toSeries(req.Prices)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.optimizer.Run(prices)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleDiffOrders handles POST /api/orders/diff
func (h *Handler) HandleDiffOrders(w http.ResponseWriter, r *http.Request) {
	var req DiffOrdersRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	orders := sizing.Diff(req.Current, req.Target)
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRebalanceInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOptimizationFailed), errors.Is(err, domain.ErrDegenerateInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	} else {
		h.log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
