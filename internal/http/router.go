package httpx

import (
	"log/slog"
	"net/http"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/app"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/ws"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub) http.Handler {
	mw := NewMiddleware(cfg)
	stats := &StatsAPI{Hub: hub}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Ops surface
	mux.Handle("/api/stats", http.HandlerFunc(stats.Get))

	return mw.Wrap(mux) // CORS + rate limit applied globally
}
