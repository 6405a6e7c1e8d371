package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "healthy",
		"service":        "rebalancer",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"state":          s.container.Controller.State().String(),
	}

	status := http.StatusOK
	if db := s.container.HistoryDB; db != nil {
		if err := db.QuickCheck(r.Context()); err != nil {
			response["status"] = "degraded"
			response["history_db"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response["history_db"] = "ok"
		}
	}

	s.writeJSON(w, status, response)
}

// handleJobs lists scheduled jobs and their next activation
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	job := s.container.RebalanceJob
	entry := map[string]interface{}{
		"name":     job.Name(),
		"schedule": s.container.Config.Schedule,
	}
	if next, ok := s.container.Scheduler.Next(job.Name(), time.Now()); ok {
		entry["next_run"] = next.Format(time.RFC3339)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": []interface{}{entry},
	})
}

// handleRunRebalance runs the weekly rebalance now, as of the latest rebalance weekday
func (s *Server) handleRunRebalance(w http.ResponseWriter, r *http.Request) {
	weekday := s.container.Controller.Config().RebalanceWeekday
	date := scheduler.RebalanceDate(time.Now(), weekday)

	decision, err := s.container.RebalanceJob.RunAt(r.Context(), date)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrRebalanceInProgress):
			status = http.StatusConflict
		case errors.Is(err, scheduler.ErrStaleHistory):
			status = http.StatusServiceUnavailable
		case errors.Is(err, domain.ErrInvalidArgument):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrOptimizationFailed), errors.Is(err, domain.ErrDegenerateInput):
			status = http.StatusUnprocessableEntity
		}
		s.log.Error().Err(err).Int("status", status).Msg("Manual rebalance failed")
		s.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     decision.RunID,
		"date":       decision.Date.Format("2006-01-02"),
		"orders":     decision.Orders,
		"go_to_cash": decision.GoToCash,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
