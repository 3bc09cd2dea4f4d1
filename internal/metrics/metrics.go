// Package metrics provides Prometheus instrumentation for the chat client
// core. It exposes counters for message and typing traffic, a gauge for the
// server-reported matchmaking queue size, and counters for connection
// lifecycle events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts chat messages processed by the session, labeled
	// by direction: "sent", "received", or "deduped" (server echoes of our
	// own sends that were suppressed).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strangerchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"direction"}) // direction = "sent", "received", "deduped"

	// QueueSize tracks the last waiting-queue count reported by the server.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "strangerchat_queue_size",
		Help: "Last server-reported number of users waiting for a match",
	})

	// PairingsTotal counts how many times this client has been matched
	// into a room.
	PairingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strangerchat_pairings_total",
		Help: "Total number of times the client was paired into a room",
	})

	// ReconnectsTotal counts reconnect attempts scheduled after an
	// unexpected close while searching.
	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strangerchat_reconnects_total",
		Help: "Total number of scheduled reconnect attempts",
	})

	// TypingEventsTotal counts typing indicator frames, labeled by
	// direction: "sent" or "received".
	TypingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strangerchat_typing_events_total",
		Help: "Total number of typing indicator events",
	}, []string{"direction"})

	// DroppedFramesTotal counts inbound frames discarded because they could
	// not be decoded.
	DroppedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strangerchat_dropped_frames_total",
		Help: "Total number of malformed inbound frames dropped",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		QueueSize,
		PairingsTotal,
		ReconnectsTotal,
		TypingEventsTotal,
		DroppedFramesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
