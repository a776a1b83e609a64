package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	eventsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Relay events processed, by event name.",
		},
		[]string{"event"},
	)
	fanoutDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "fanout_deliveries_total",
			Help:      "Messages delivered to remote connections.",
		},
	)
	droppedCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "commands_dropped_total",
			Help:      "Remote commands dropped because no presenter was attached.",
		},
	)
	rateLimitedCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "commands_rate_limited_total",
			Help:      "Remote commands rejected by the per-connection rate limit.",
		},
	)
	joinFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "join_failures_total",
			Help:      "Failed join attempts, by role.",
		},
		[]string{"role"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "active_sessions",
			Help:      "Sessions with a presenter currently attached.",
		},
	)
	connectedRemotes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slidecast",
			Subsystem: "relay",
			Name:      "connected_remotes",
			Help:      "Remote connections currently subscribed to a session.",
		},
	)
)

// RegisterMetrics registers all relay metrics exactly once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			eventsRelayed,
			fanoutDeliveries,
			droppedCommands,
			rateLimitedCommands,
			joinFailures,
			activeSessions,
			connectedRemotes,
		)
	})
}

// RecordEvent counts one processed relay event.
func RecordEvent(event string) {
	RegisterMetrics()
	eventsRelayed.WithLabelValues(event).Inc()
}

// RecordFanout counts messages delivered to remotes during one fan-out.
func RecordFanout(delivered int) {
	RegisterMetrics()
	fanoutDeliveries.Add(float64(delivered))
}

// RecordDroppedCommand counts a command dropped for want of a presenter.
func RecordDroppedCommand() {
	RegisterMetrics()
	droppedCommands.Inc()
}

// RecordRateLimitedCommand counts a command rejected by the rate limiter.
func RecordRateLimitedCommand() {
	RegisterMetrics()
	rateLimitedCommands.Inc()
}

// RecordJoinFailure counts a failed join attempt.
func RecordJoinFailure(role string) {
	RegisterMetrics()
	joinFailures.WithLabelValues(role).Inc()
}

// SetSessionGauges publishes current membership counts.
func SetSessionGauges(active, remotes int) {
	RegisterMetrics()
	activeSessions.Set(float64(active))
	connectedRemotes.Set(float64(remotes))
}
