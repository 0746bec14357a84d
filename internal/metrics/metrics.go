// Package metrics exposes Prometheus instrumentation for the audio pipeline
// and the live session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the advisor.
type Metrics struct {
	// Audio pipeline
	FramesSent prometheus.Counter

	// Conversation
	TurnsCompleted     prometheus.Counter
	MessagesCommitted  prometheus.Counter
	SuggestionsCreated prometheus.Counter

	// Session lifecycle
	SessionErrors prometheus.Counter
	SessionActive prometheus.Gauge
}

// New creates and registers all metrics against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisor_frames_sent_total",
			Help: "Total number of encoded audio frames sent to the live session",
		}),
		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisor_turns_completed_total",
			Help: "Total number of turn boundaries committed",
		}),
		MessagesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisor_messages_committed_total",
			Help: "Total number of conversation messages committed",
		}),
		SuggestionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisor_suggestions_created_total",
			Help: "Total number of suggestions derived from assistant turns",
		}),
		SessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisor_session_errors_total",
			Help: "Total number of failed session starts and mid-session failures",
		}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_session_active",
			Help: "Whether a live session is currently active (0 or 1)",
		}),
	}
}
