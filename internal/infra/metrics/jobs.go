package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsPublishedTotal,
		jobsProcessedTotal,
		jobDurationSeconds,
		jobsExpiredTotal,
	)
}

var (
	jobsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_published_total",
			Help: "Publish calls per queue and outcome.",
		},
		[]string{"queue", "outcome"}, // 'created', 'deduplicated', 'error'
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed, labeled by queue and outcome.",
		},
		[]string{"queue", "outcome"}, // 'completed', 'failed', 'skipped'
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Time spent handling one job.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"queue"},
	)

	jobsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_expired_total",
			Help: "Active jobs failed by the stale-job sweep.",
		},
		[]string{"driver"},
	)
)

func IncJobPublished(queue, outcome string) {
	jobsPublishedTotal.WithLabelValues(norm(queue), norm(outcome)).Inc()
}

func ObserveJob(queue, outcome string, seconds float64) {
	jobsProcessedTotal.WithLabelValues(norm(queue), norm(outcome)).Inc()
	jobDurationSeconds.WithLabelValues(norm(queue)).Observe(seconds)
}

func AddJobsExpired(driver string, n int64) {
	jobsExpiredTotal.WithLabelValues(norm(driver)).Add(float64(n))
}
