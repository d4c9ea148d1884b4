// Package metrics exposes Prometheus collectors for the fleet.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	JobsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encodefleet_jobs_created_total",
			Help: "Total number of jobs submitted",
		},
	)

	JobsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encodefleet_jobs_dispatched_total",
			Help: "Total number of jobs bound to a worker slot",
		},
		[]string{"instance_key"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encodefleet_jobs_completed_total",
			Help: "Total number of accepted job completions",
		},
		[]string{"status"}, // SUCCESSFUL, FAILED
	)

	DuplicateCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encodefleet_duplicate_completions_total",
			Help: "Total number of completion reports ignored as duplicates",
		},
	)

	NotificationDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encodefleet_notification_deliveries_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"type", "result"}, // result: success, retry, failed, dropped
	)

	InstancesReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encodefleet_instances_reclaimed_total",
			Help: "Total number of instances marked offline for missed heartbeats",
		},
	)

	PurgesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encodefleet_purges_total",
			Help: "Total number of full data purges",
		},
	)

	// Gauges, refreshed by the stats recorder
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "encodefleet_jobs",
			Help: "Current number of jobs per status",
		},
		[]string{"status"},
	)

	InstancesByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "encodefleet_instances",
			Help: "Current number of instances per status",
		},
		[]string{"status"},
	)

	NotificationsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "encodefleet_notifications",
			Help: "Current number of notifications per status",
		},
		[]string{"status"},
	)

	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "encodefleet_workers_busy",
			Help: "Current number of worker slots bound to a job",
		},
	)

	WorkersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "encodefleet_workers",
			Help: "Current number of worker slots",
		},
	)

	// Buckets: 1s .. ~9h
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encodefleet_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
		[]string{"status"},
	)
)
