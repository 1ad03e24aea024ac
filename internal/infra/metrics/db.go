package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, dbAcquireWaitSeconds) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use', 'max'
	)

	dbAcquireWaitSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_acquire_wait_seconds",
			Help: "Cumulative time spent waiting for a pooled connection.",
		},
	)
)

func SetDBPoolStats(total, idle, inUse, max int32, acquireWaitSeconds float64) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	dbPoolStats.WithLabelValues("max").Set(float64(max))
	dbAcquireWaitSeconds.Set(acquireWaitSeconds)
}
