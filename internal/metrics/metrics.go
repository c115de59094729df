// Package metrics 定义进程级 Prometheus 指标。
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futureself_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "futureself_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// CompletionsTotal 按结果统计补全调用：ok/auth/rate_limited/transport/malformed/error。
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futureself_llm_completions_total",
			Help: "Total number of chat-completion calls by outcome.",
		},
		[]string{"outcome"},
	)

	CompletionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "futureself_llm_completion_duration_seconds",
			Help:    "Chat-completion call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		},
	)

	IndexTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futureself_index_tasks_total",
			Help: "Total number of memory index tasks processed.",
		},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CompletionsTotal,
		CompletionDuration,
		IndexTasksTotal,
	)
}
