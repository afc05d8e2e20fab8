// Package metrics exposes the prometheus registry for the task engine.
// Grounded on livepeer-catalyst-api/metrics, which builds a single
// package-level Metrics struct of counters/gauges/histograms registered
// at init time.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type TaskMetrics struct {
	Admitted           *prometheus.CounterVec
	Completed          *prometheus.CounterVec
	Failed             *prometheus.CounterVec
	InFlight           prometheus.Gauge
	ExecutionDuration  *prometheus.HistogramVec
	ProviderCallErrors *prometheus.CounterVec
	BillingDeductions  *prometheus.CounterVec
	TrialsConsumed     prometheus.Counter
	SweptStuck         prometheus.Counter
	QueueDepth         *prometheus.GaugeVec
	HTTPRequestsInFlight prometheus.Gauge
}

var Metrics = registerTaskMetrics()

func registerTaskMetrics() *TaskMetrics {
	m := &TaskMetrics{
		Admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "tasks_admitted_total",
			Help:      "Number of tasks admitted, by priority and source_type.",
		}, []string{"priority", "source_type"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "tasks_succeeded_total",
			Help:      "Number of tasks that reached succeeded, by engine.",
		}, []string{"engine"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "tasks_failed_total",
			Help:      "Number of tasks that reached failed, by reason.",
		}, []string{"reason"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently pending or processing.",
		}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "transcribe",
			Name:      "task_execution_seconds",
			Help:      "Wall-clock time spent executing a task end to end.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"source_type"}),
		ProviderCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "provider_call_errors_total",
			Help:      "Errors returned by upstream transcription providers.",
		}, []string{"provider"}),
		BillingDeductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "billing_deductions_total",
			Help:      "Balance deduction attempts, by outcome.",
		}, []string{"ok"}),
		TrialsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "trials_consumed_total",
			Help:      "Trial tasks that recorded trial usage.",
		}),
		SweptStuck: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcribe",
			Name:      "sweeper_tasks_failed_total",
			Help:      "Tasks failed by the stuck-task sweeper.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "transcribe",
			Name:      "dispatcher_queue_depth",
			Help:      "Pending jobs in the durable dispatcher queue, by priority.",
		}, []string{"priority"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}

	prometheus.MustRegister(
		m.Admitted, m.Completed, m.Failed, m.InFlight, m.ExecutionDuration,
		m.ProviderCallErrors, m.BillingDeductions, m.TrialsConsumed,
		m.SweptStuck, m.QueueDepth, m.HTTPRequestsInFlight,
	)
	return m
}

// ObserveExecution records how long a task's full pipeline run took.
func ObserveExecution(sourceType string, since time.Time) {
	Metrics.ExecutionDuration.WithLabelValues(sourceType).Observe(time.Since(since).Seconds())
}
