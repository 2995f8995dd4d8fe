package invoiceflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	runsTotalCounter         *prometheus.CounterVec
	checkpointsCreatedMetric prometheus.Counter
	decisionsTotalCounter    *prometheus.CounterVec
	stageDurationMetric      *prometheus.HistogramVec
)

// initMetrics registers metrics on the default Prometheus registry exactly
// once.
func initMetrics() {
	metricsOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoiceflow_runs_total",
				Help: "Total number of workflow run terminal or pause outcomes by status.",
			},
			[]string{"status"},
		)

		checkpointsCreatedMetric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "invoiceflow_checkpoints_created_total",
				Help: "Total number of checkpoints written for human review.",
			},
		)

		decisionsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoiceflow_decisions_total",
				Help: "Total number of applied review decisions by decision.",
			},
			[]string{"decision"},
		)

		stageDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoiceflow_stage_duration_seconds",
				Help:    "Duration of stage function executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			checkpointsCreatedMetric,
			decisionsTotalCounter,
			stageDurationMetric,
		)
	})
}

func recordRunOutcome(status RunStatus) {
	if runsTotalCounter != nil {
		runsTotalCounter.WithLabelValues(string(status)).Inc()
	}
}

func recordCheckpointCreated() {
	if checkpointsCreatedMetric != nil {
		checkpointsCreatedMetric.Inc()
	}
}

func recordDecision(decision Decision) {
	if decisionsTotalCounter != nil {
		decisionsTotalCounter.WithLabelValues(string(decision)).Inc()
	}
}

func observeStageDuration(stage Stage, duration time.Duration) {
	if stageDurationMetric != nil {
		stageDurationMetric.WithLabelValues(string(stage)).Observe(duration.Seconds())
	}
}
