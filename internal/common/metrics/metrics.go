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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	QuestionsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questions_routed_total",
			Help: "Total number of questions routed, by chosen mode",
		},
		[]string{"mode"},
	)

	RoutingConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routing_confidence",
			Help:    "Confidence of routing decisions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "engine_duration_seconds",
			Help: "Duration of answer engine execution in seconds",
		},
		[]string{"engine"},
	)

	TableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "table_rows",
			Help: "Row counts observed at each table construction stage",
		},
		[]string{"stage"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Result cache operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "external_call_duration_seconds",
			Help: "Duration of external service calls in seconds",
		},
		[]string{"service"},
	)
)
