// Package api exposes the presenter boundary over HTTP. The core's only
// outputs are the dashboard snapshot, the resolved grants, and limit
// lookups; the only input from the presenter is a refresh trigger.
package api

import (
	"net/http"
	"time"

	"github.com/openfolio/folio/internal/dashboard"
	"github.com/openfolio/folio/internal/metrics"
	"github.com/openfolio/folio/internal/subscription"
	"github.com/openfolio/folio/internal/websocket"
)

// Router handles HTTP routing.
type Router struct {
	mux         *http.ServeMux
	aggregator  *dashboard.Aggregator
	subs        *subscription.Provider
	wsHub       *websocket.Hub
	passMetrics *metrics.PassMetrics
	version     string
	startTime   time.Time
}

// NewRouter creates the HTTP handler for the presenter boundary.
func NewRouter(aggregator *dashboard.Aggregator, subs *subscription.Provider, wsHub *websocket.Hub, passMetrics *metrics.PassMetrics, version string) http.Handler {
	r := &Router{
		mux:         http.NewServeMux(),
		aggregator:  aggregator,
		subs:        subs,
		wsHub:       wsHub,
		passMetrics: passMetrics,
		version:     version,
		startTime:   time.Now(),
	}
	r.setupRoutes()
	return requestLogger(r.mux)
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/api/health", r.handleHealth)
	r.mux.HandleFunc("/api/dashboard", r.handleDashboard)
	r.mux.HandleFunc("/api/dashboard/refresh", r.handleRefresh)
	r.mux.HandleFunc("/api/entitlements", r.handleEntitlements)

	if r.wsHub != nil {
		r.mux.HandleFunc("/ws", r.wsHub.HandleWebSocket)
	}
	if r.passMetrics != nil {
		r.mux.Handle("/metrics", r.passMetrics.Handler())
	}
}
