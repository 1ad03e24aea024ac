package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		processingTransitionsTotal,
		processingRetriesTotal,
		recoverySweepsTotal,
	)
}

var (
	processingTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_processing_transitions_total",
			Help: "Message processing state transitions by target status.",
		},
		[]string{"status"},
	)

	processingRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_processing_retries_total",
			Help: "Retry requests by result.",
		},
		[]string{"result"}, // 'published', 'terminal', 'not_found', 'error'
	)

	recoverySweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_processing_recovery_sweeps_total",
			Help: "Scheduled recovery sweeps by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'error'
	)
)

func IncTransition(status string) {
	processingTransitionsTotal.WithLabelValues(norm(status)).Inc()
}

func IncRetry(result string) {
	processingRetriesTotal.WithLabelValues(norm(result)).Inc()
}

func IncRecoverySweep(outcome string) {
	recoverySweepsTotal.WithLabelValues(norm(outcome)).Inc()
}
