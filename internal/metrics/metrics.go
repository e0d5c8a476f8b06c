package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TaskEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clonevideo",
			Name:      "task_events_total",
			Help:      "Count of task lifecycle events by stage.",
		},
		[]string{"stage"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clonevideo",
			Name:      "fetch_errors_total",
			Help:      "Errors from external acquisition tools.",
		},
		[]string{"op"},
	)

	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clonevideo",
			Name:      "fetch_latency_seconds",
			Help:      "Latency of external acquisition operations.",
		},
		[]string{"op"},
	)

	ActiveTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clonevideo",
			Name:      "active_tasks",
			Help:      "Number of live tasks in the registry.",
		},
	)
)

// Register registers the bot metrics into the default registry.
func Register() {
	prometheus.MustRegister(TaskEvents, FetchErrors, FetchLatency, ActiveTasks)
}
