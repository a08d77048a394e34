package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	folioerrors "github.com/openfolio/folio/internal/errors"
	"github.com/openfolio/folio/internal/logging"
	"github.com/openfolio/folio/pkg/plans"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type dashboardPendingResponse struct {
	Status string `json:"status"`
}

type entitlementsResponse struct {
	PlanID        string               `json:"planId"`
	Grants        []plans.FeatureGrant `json:"grants"`
	IsPro         bool                 `json:"isPro"`
	IsOnTrial     bool                 `json:"isOnTrial"`
	TrialDaysLeft int                  `json:"trialDaysLeft"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: rt.version,
		Uptime:  time.Since(rt.startTime).Round(time.Second).String(),
	})
}

// handleDashboard serves the latest published snapshot. Before the first
// pass completes it answers 202 so the presenter can show a loading state;
// a terminal pass failure is an explicit error state, not silence.
func (rt *Router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := rt.aggregator.LastError(); err != nil {
		if errors.Is(err, folioerrors.ErrIdentityUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "identity unavailable"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	snap, ok := rt.aggregator.Latest()
	if !ok {
		writeJSON(w, http.StatusAccepted, dashboardPendingResponse{Status: "pending"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.aggregator.Trigger()
	writeJSON(w, http.StatusAccepted, dashboardPendingResponse{Status: "triggered"})
}

func (rt *Router) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sub := rt.subs.Current()
	grants := []plans.FeatureGrant{}
	if snap, ok := rt.aggregator.Latest(); ok {
		grants = snap.Grants
	}
	writeJSON(w, http.StatusOK, entitlementsResponse{
		PlanID:        sub.PlanID,
		Grants:        grants,
		IsPro:         rt.subs.IsPro(),
		IsOnTrial:     rt.subs.IsOnTrial(),
		TrialDaysLeft: rt.subs.TrialDaysLeft(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// requestLogger attaches a request id and logs each request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request", requestID).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}
