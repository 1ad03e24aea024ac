package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCost,
		aiCallsLatencyMs,
		aiHistoryTrimmed,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_total",
			Help: "Accumulated LLM cost per provider/model in configured currency units.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000},
		},
		[]string{"provider", "model", "success"},
	)

	aiHistoryTrimmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_history_trimmed_total",
			Help: "Chat history messages dropped to fit the prompt token budget.",
		},
		[]string{"provider", "model"},
	)
)

func ObserveChatUsage(provider, model string, tokensIn, tokensOut int, cost float64, latencyMs int64, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	if cost > 0 {
		aiCost.WithLabelValues(lbl...).Add(cost)
	}
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func AddHistoryTrimmed(provider, model string, n int) {
	if n <= 0 {
		return
	}
	aiHistoryTrimmed.WithLabelValues(norm(provider), norm(model)).Add(float64(n))
}
