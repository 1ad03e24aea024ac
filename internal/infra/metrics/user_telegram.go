package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramUpdatesReceivedTotal,
		telegramRateLimitTriggeredTotal,
		telegramSendTotal,
	)
}

var (
	telegramUpdatesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_received_total",
			Help: "Counts incoming updates by handling result.",
		},
		[]string{"result"}, // 'ingested', 'duplicate', 'ignored', 'error'
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times chats have been rate-limited.",
		},
	)

	telegramSendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_send_total",
			Help: "Outgoing bot replies by status.",
		},
		[]string{"status"}, // 'sent', 'error', 'permanent'
	)
)

func IncTelegramUpdate(result string) {
	telegramUpdatesReceivedTotal.WithLabelValues(norm(result)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncTelegramSend(status string) {
	telegramSendTotal.WithLabelValues(norm(status)).Inc()
}
