package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "riskdesk"

var (
	WorkflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Total number of workflow state transitions, labeled by risk type and target phase.",
		},
		[]string{"risk_type", "phase"},
	)

	WorkflowRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of finished workflow runs, labeled by outcome and failing stage.",
		},
		[]string{"risk_type", "outcome", "stage"},
	)

	WorkflowRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Time from trigger to terminal state (seconds).",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"risk_type", "outcome"},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Total number of job status polls, labeled by outcome (pending, complete, transient, fatal).",
		},
		[]string{"risk_type", "outcome"},
	)

	UpstreamRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Latency of calls to the agent API, labeled by operation and status class.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	IdentifierFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifier_fallback_total",
			Help:      "Identifiers generated from the pseudo-random fallback because the strong source failed.",
		},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"scope", "operation"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Feature boards currently mounted on the gateway.",
		},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Run-completion webhook deliveries, labeled by run outcome and delivery result.",
		},
		[]string{"outcome", "result"},
	)

	SimulatedJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_jobs_total",
			Help:      "Jobs handled by the agent simulator, labeled by event.",
		},
		[]string{"risk_type", "event"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkflowTransitionsTotal,
		WorkflowRunsTotal,
		WorkflowRunDurationSeconds,
		PollsTotal,
		UpstreamRequestSeconds,
		IdentifierFallbackTotal,
		RateLimitHitsTotal,
		SessionsActive,
		WebhookDeliveriesTotal,
		SimulatedJobsTotal,
	)
}
