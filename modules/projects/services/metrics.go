package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rowsTotal     *prometheus.CounterVec
	batchesTotal  *prometheus.CounterVec
	batchDuration prometheus.Histogram
	runsTotal     *prometheus.CounterVec
	mismatches    prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Rows handled by the importer broken down by result.",
		}, []string{"result"}),
		batchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Import batches broken down by result and write mode.",
		}, []string{"result", "mode"}),
		batchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "projtrack",
			Subsystem: "import",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one import batch transaction.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs broken down by final state.",
		}, []string{"state"}),
		mismatches: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "projtrack",
			Subsystem: "reconcile",
			Name:      "mismatched_groups",
			Help:      "Groups that failed the last reconciliation.",
		}),
	}
})

func recordRows(result string, n int) {
	if n <= 0 {
		return
	}
	metricsSingleton().rowsTotal.WithLabelValues(result).Add(float64(n))
}
