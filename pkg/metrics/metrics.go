package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections is the number of authenticated, registered WS connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "draw_ws_connections",
		Help: "Live authenticated websocket connections.",
	})

	// Rooms is the number of rooms with at least one member.
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "draw_ws_rooms",
		Help: "Rooms with at least one joined connection.",
	})

	Handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_ws_handshakes_total",
		Help: "Websocket handshakes by result.",
	}, []string{"result"})

	// Frames counts inbound frames by type and outcome (ok, malformed, unknown, not_joined, persist_error).
	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_ws_frames_total",
		Help: "Inbound websocket frames by type and result.",
	}, []string{"type", "result"})

	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_ws_deliveries_total",
		Help: "Outbound chat frames enqueued to member connections.",
	})

	OverflowKicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_ws_overflow_kicks_total",
		Help: "Connections closed because their outbound queue was full.",
	})

	AppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_eventlog_append_failures_total",
		Help: "Event log appends that failed; the event was not broadcast.",
	})

	// HistoryCache counts history lookups by result (hit, miss, error).
	HistoryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_history_cache_total",
		Help: "Room history cache lookups by result.",
	}, []string{"result"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
