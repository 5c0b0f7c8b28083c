package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rw_risk_handler",
			Name:      "messages_received_total",
			Help:      "Kafka scan jobs pulled by the worker",
		},
		[]string{"topic"},
	)

	ScansProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rw_risk_handler",
			Name:      "processed_total",
			Help:      "Successfully evaluated scan jobs",
		},
		[]string{"topic"},
	)

	ScansFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rw_risk_handler",
			Name:      "failed_total",
			Help:      "Failed scan jobs by reason",
		},
		[]string{"topic", "reason"},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rw_risk_handler",
			Name:      "alerts_total",
			Help:      "Risk alerts persisted by category band",
		},
		[]string{"category"},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rw_risk_handler",
			Name:      "dlq_total",
			Help:      "Jobs sent to DLQ by reason",
		},
		[]string{"topic", "reason"},
	)

	ScanLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rw_risk_handler",
			Name:      "process_duration_seconds",
			Help:      "End-to-end evaluation latency per message",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	InflightScans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rw_risk_handler",
			Name:      "inflight_jobs",
			Help:      "Number of scans currently being processed (semaphore depth)",
		},
	)
)
