// Package metrics provides Prometheus metrics for the cleanlog pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record pipeline metrics
	RecordsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanlog_records_emitted_total",
			Help: "Total number of log records written to a sink",
		},
		[]string{"level"},
	)

	RecordsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanlog_records_dropped_total",
			Help: "Total number of log records lost to formatting or sink failures",
		},
		[]string{"reason"}, // "format", "write", "panic"
	)

	// Value conversion metrics
	SanitizeFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanlog_sanitize_fallbacks_total",
			Help: "Total number of values degraded to their string form",
		},
		[]string{"kind"},
	)

	// Facade metrics
	ScopeSetupFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanlog_scope_setup_failures_total",
			Help: "Total number of log calls that fell back to an unscoped emission",
		},
	)

	// Active scope frames gauge
	ScopeFramesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cleanlog_scope_frames_active",
			Help: "Number of currently pushed scope frames",
		},
	)

	// Lock provider metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanlog_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "acquire", "release"; status: "success", "failure"
	)

	LockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cleanlog_lock_operation_duration_seconds",
			Help:    "Lock operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Active locks gauge
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cleanlog_active_locks",
			Help: "Number of currently held lock slots",
		},
	)
)
