// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the task pool.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics holds the collectors updated by a pool. With a nil registerer
// the collectors work but are not exported anywhere.
type PoolMetrics struct {
	TasksSubmitted   prometheus.Counter
	TasksExecuted    prometheus.Counter
	TaskPanics       prometheus.Counter
	TasksDropped     prometheus.Counter
	SubmitFailures   *prometheus.CounterVec // by reason
	DispatchErrors   *prometheus.CounterVec // by op
	ChannelsOpen     prometheus.Gauge
	ChannelsAccepted prometheus.Counter
	Workers          prometheus.Gauge
	TaskDuration     prometheus.Histogram
}

// NewPoolMetrics creates and registers the pool collectors. Several pools can
// share a registerer if each wraps it with a distinguishing label.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	f := promauto.With(reg)
	return &PoolMetrics{
		TasksSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "taskpool_tasks_submitted_total",
			Help: "Tasks handed off to a task channel.",
		}),
		TasksExecuted: f.NewCounter(prometheus.CounterOpts{
			Name: "taskpool_tasks_executed_total",
			Help: "Tasks invoked by a worker, including those that panicked.",
		}),
		TaskPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "taskpool_task_panics_total",
			Help: "Tasks whose invocation panicked.",
		}),
		TasksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "taskpool_tasks_dropped_total",
			Help: "Submitted tasks discarded at close without running.",
		}),
		SubmitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpool_submit_failures_total",
			Help: "Failed AddTask calls by reason.",
		}, []string{"reason"}),
		DispatchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpool_dispatch_errors_total",
			Help: "Errors handled inside dispatch loops by operation.",
		}, []string{"op"}),
		ChannelsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskpool_channels_open",
			Help: "Accepted task channels currently registered.",
		}),
		ChannelsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "taskpool_channels_accepted_total",
			Help: "Task channels accepted by the pool.",
		}),
		Workers: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskpool_workers",
			Help: "Worker threads running dispatch loops.",
		}),
		TaskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskpool_task_duration_seconds",
			Help:    "Time spent invoking a task.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}
