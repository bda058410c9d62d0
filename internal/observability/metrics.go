package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "survey_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "survey_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "survey_reconcile_runs_total",
		Help: "Response reconciliation runs by outcome",
	}, []string{"status"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "survey_reconcile_duration_seconds",
		Help:    "Duration of a full response reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	ReconciledRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "survey_reconciled_records",
		Help: "Number of aggregated responses produced by the last reconciliation",
	})

	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "survey_chat_requests_total",
		Help: "Survey analysis chat requests by outcome",
	}, []string{"outcome"})

	ChatEvidenceRecords = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "survey_chat_evidence_records",
		Help:    "Number of filtered submissions retrieved per chat request",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 150, 200},
	})

	CompletionRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "survey_completion_request_duration_seconds",
		Help:    "Time until the completion service answered with a status line",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	RelayedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "survey_chat_relayed_bytes_total",
		Help: "Bytes relayed from the completion stream to clients",
	})
)
