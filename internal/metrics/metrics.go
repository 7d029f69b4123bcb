// Package metrics holds the gateway's prometheus collectors (spec §9
// observability), grouped the way duckmesh's internal/observability package
// declares and registers its vectors: package-level vars, registered once
// in init().
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total chat completion requests by tenant and outcome.",
		},
		[]string{"tenant", "outcome"},
	)

	RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency by tenant and agent.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant", "agent"},
	)

	SQLExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sql_executed_total",
			Help: "Total SQL statements executed by the postgres agent, by tenant and result.",
		},
		[]string{"tenant", "result"},
	)

	SQLRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sql_rejected_total",
			Help: "Total SQL statements rejected by the safety gate, by tenant and reason.",
		},
		[]string{"tenant", "reason"},
	)

	DispatcherRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_dispatcher_retries_total",
			Help: "Total fallback-chain retries by tenant and triggering agent.",
		},
		[]string{"tenant", "from_agent"},
	)

	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_llm_tokens_total",
			Help: "Total LLM tokens consumed by tenant and token kind (prompt/completion).",
		},
		[]string{"tenant", "kind"},
	)

	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_provider_errors_total",
			Help: "Total LLM provider call failures by tenant, after retry exhaustion.",
		},
		[]string{"tenant"},
	)

	RouteCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_route_cache_hits_total",
			Help: "Intent-classification route cache hits versus misses.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDurationSeconds,
		SQLExecutedTotal,
		SQLRejectedTotal,
		DispatcherRetriesTotal,
		TokensTotal,
		ProviderErrorsTotal,
		RouteCacheHitsTotal,
	)
}
