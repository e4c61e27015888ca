// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	ReceiptsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipts_processed_total",
			Help: "Receipts processed by category and final outcome",
		},
		[]string{"category", "outcome"},
	)

	DuplicateScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receipt_duplicate_score",
			Help:    "Best similarity score per duplicate check",
			Buckets: []float64{0, 0.5, 0.8, 0.9, 0.93, 0.95, 0.97, 0.99, 1},
		},
		[]string{"category"},
	)

	AgentTurns = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_session_turns",
			Help:    "Model turns used per agent session",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		},
		[]string{"state"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Tool invocations by tool and result code",
		},
		[]string{"tool", "result"},
	)

	IntakeInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "receipt_intake_in_flight",
			Help: "Receipts currently being processed from HTTP intake",
		},
	)
)
