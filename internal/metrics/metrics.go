package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	IncomingMessages *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	StepTransitions  *prometheus.CounterVec
	OrdersCreated    prometheus.Counter
	ProofsReceived   *prometheus.CounterVec
	SessionResets    *prometheus.CounterVec
	TwilioRequests   *prometheus.CounterVec
	TwilioLatency    *prometheus.HistogramVec
	SchemaFallbacks  *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incoming_messages_total",
				Help:      "Total inbound customer messages processed.",
			}, []string{"type"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Total outbound replies by provider and outcome.",
			}, []string{"provider", "status"}),
			StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversation_steps_total",
				Help:      "Conversation turns grouped by resulting step.",
			}, []string{"step"}),
			OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Total orders confirmed by customers.",
			}),
			ProofsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_proofs_total",
				Help:      "Payment acknowledgements grouped by source.",
			}, []string{"source"}),
			SessionResets: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_resets_total",
				Help:      "Sessions dropped or restarted grouped by reason.",
			}, []string{"reason"}),
			TwilioRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "twilio_requests_total",
				Help:      "Total Twilio API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			TwilioLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "twilio_request_duration_seconds",
				Help:      "Latency distribution for Twilio API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			SchemaFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_fallbacks_total",
				Help:      "Order writes that degraded because optional columns are missing or failed.",
			}, []string{"operation"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingMessages,
			metricsInstance.OutgoingMessages,
			metricsInstance.StepTransitions,
			metricsInstance.OrdersCreated,
			metricsInstance.ProofsReceived,
			metricsInstance.SessionResets,
			metricsInstance.TwilioRequests,
			metricsInstance.TwilioLatency,
			metricsInstance.SchemaFallbacks,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
