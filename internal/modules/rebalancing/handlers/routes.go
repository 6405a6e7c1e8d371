package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rebalancing engine routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rebalance", func(r chi.Router) {
		r.Post("/plan", h.HandlePlan)
		r.Get("/status", h.HandleStatus)
	})
	r.Post("/signals/evaluate", h.HandleEvaluateSignals)
	r.Post("/optimizer/weights", h.HandleComputeWeights)
	r.Post("/orders/diff", h.HandleDiffOrders)
}
