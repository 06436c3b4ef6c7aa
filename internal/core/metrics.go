package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "review_prep",
			Subsystem: "pipeline",
			Name:      "stage_rows_total",
			Help:      "Rows leaving each pipeline stage",
		},
		[]string{"stage"},
	)

	recordsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "review_prep",
			Subsystem: "pipeline",
			Name:      "records_written_total",
			Help:      "TFRecord examples written per split",
		},
		[]string{"split"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "review_prep",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"stage"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "review_prep",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Prepare jobs processed by final status",
		},
		[]string{"status"},
	)
)

func observeStage(event StageEvent) {
	stageRowsTotal.WithLabelValues(string(event.Stage)).Add(float64(event.Rows))
	stageDuration.WithLabelValues(string(event.Stage)).Observe(event.Duration.Seconds())
	if event.Stage == StageWritten {
		recordsWrittenTotal.WithLabelValues(string(event.Split)).Add(float64(event.Rows))
	}
}
