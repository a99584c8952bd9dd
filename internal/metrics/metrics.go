// Package metrics provides Prometheus instrumentation for the chat client.
// It exposes a gauge for the live connection and room count, counters for
// message and match traffic, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connected is 1 while the session holds a live transport connection.
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "circle_transport_connected",
		Help: "Whether the realtime transport is connected (1) or not (0)",
	})

	// MessagesTotal counts private messages, labeled by type: "sent",
	// "received", "dropped" (malformed inbound) or "throttled".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_messages_total",
		Help: "Total number of private messages processed",
	}, []string{"type"})

	// MatchTransitions counts random-match status updates by status.
	MatchTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_match_transitions_total",
		Help: "Random-match status updates received",
	}, []string{"status"})

	// MatchDuration records the time from a match request to connected.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "circle_match_duration_seconds",
		Help:    "Time from match request to connected",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	})

	// NotificationsTotal counts new-message notifications, labeled by
	// result: "shown" or "skipped".
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_notifications_total",
		Help: "New-message notifications dispatched or skipped",
	}, []string{"result"})

	// ActiveChats tracks the number of rooms in the chat list.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "circle_active_chats",
		Help: "Current number of rooms in the chat list",
	})

	// HistoryLoadDuration records how long a history load takes.
	HistoryLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "circle_history_load_seconds",
		Help:    "History load latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		Connected,
		MessagesTotal,
		MatchTransitions,
		MatchDuration,
		NotificationsTotal,
		ActiveChats,
		HistoryLoadDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
