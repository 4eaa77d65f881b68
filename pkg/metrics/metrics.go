package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks live WebSocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coderoom_connections_active",
		Help: "Number of open WebSocket connections.",
	})

	// RoomsActive tracks rooms with at least one member.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coderoom_rooms_active",
		Help: "Number of live rooms.",
	})

	// EventsTotal counts room events by type (join, leave, chat).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderoom_events_total",
		Help: "Room events recorded, by type.",
	}, []string{"type"})

	// ExecutionsTotal counts sandbox runs by outcome.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderoom_executions_total",
		Help: "Sandbox executions, by status (success or failure).",
	}, []string{"status"})

	// ExecutionDuration observes sandbox run wall time.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coderoom_execution_duration_seconds",
		Help:    "Wall-clock duration of sandbox executions.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
