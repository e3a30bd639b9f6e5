package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crs_roadmap_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crs_roadmap_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"stage", "status"},
	)

	ScoresComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crs_roadmap_scores_computed_total",
			Help: "Total number of deterministic CRS scores computed by source",
		},
		[]string{"source"},
	)

	RunCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crs_roadmap_run_cache_lookups_total",
			Help: "Run result cache lookups by result",
		},
		[]string{"result"},
	)
)

// ObserveStage records how long a stage took and whether it succeeded.
func ObserveStage(stage string, started time.Time, err error) {
	StageDuration.WithLabelValues(stage, status(err)).Observe(time.Since(started).Seconds())
}

// ObserveRun counts a finished run.
func ObserveRun(err error) {
	RunsTotal.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusOK
}
