package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fallbackTotal   prometheus.Counter

	embedTotal      *prometheus.CounterVec
	evictTotal      prometheus.Counter
	registeredTools *prometheus.GaugeVec

	syncCycleTotal    *prometheus.CounterVec
	syncCycleDuration prometheus.Histogram
	syncListedObjects prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			requestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dispatch_requests_total",
					Help: "Total dispatched requests by path (script, tool) and status.",
				},
				[]string{"path", "status"},
			),
			requestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "dispatch_request_duration_seconds",
					Help:    "Dispatch duration in seconds by path.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"path"},
			),
			fallbackTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "dispatch_fallback_total",
					Help: "Requests answered by the default tool.",
				},
			),
			embedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "script_embed_total",
					Help: "Script embed attempts by outcome (embedded, skipped, failed).",
				},
				[]string{"outcome"},
			),
			evictTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "script_evict_total",
					Help: "Script tools evicted after their object disappeared.",
				},
			),
			registeredTools: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "registered_tools",
					Help: "Registered tools by kind.",
				},
				[]string{"kind"},
			),
			syncCycleTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_cycle_total",
					Help: "Reconciliation cycles by status.",
				},
				[]string{"status"},
			),
			syncCycleDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sync_cycle_duration_seconds",
					Help:    "Reconciliation cycle duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			syncListedObjects: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "sync_listed_objects",
					Help: "Objects returned by the last complete listing.",
				},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.requestTotal,
			m.requestDuration,
			m.fallbackTotal,
			m.embedTotal,
			m.evictTotal,
			m.registeredTools,
			m.syncCycleTotal,
			m.syncCycleDuration,
			m.syncListedObjects,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordRequest(path string, duration time.Duration, success bool) {
	m := getMetrics()
	m.requestTotal.WithLabelValues(path, statusLabel(success)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

func RecordFallback() {
	getMetrics().fallbackTotal.Inc()
}

func RecordEmbed(outcome string) {
	getMetrics().embedTotal.WithLabelValues(outcome).Inc()
}

func RecordEvict() {
	getMetrics().evictTotal.Inc()
}

func SetRegisteredTools(kind string, count int) {
	getMetrics().registeredTools.WithLabelValues(kind).Set(float64(count))
}

func RecordSyncCycle(duration time.Duration, listed int, success bool) {
	m := getMetrics()
	m.syncCycleTotal.WithLabelValues(statusLabel(success)).Inc()
	m.syncCycleDuration.Observe(duration.Seconds())
	if success {
		m.syncListedObjects.Set(float64(listed))
	}
}
