package replication

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rowsTotal     *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	tablesSkipped prometheus.Counter
	throttled     prometheus.Counter
	writeLatency  *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "replication",
			Name:      "rows_total",
			Help:      "Rows replicated to the target store by table and result.",
		}, []string{"table", "result"}),
		retriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "replication",
			Name:      "retries_total",
			Help:      "Row writes retried after a failure.",
		}, []string{"table"}),
		tablesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "replication",
			Name:      "tables_skipped_total",
			Help:      "Tables skipped because the source store does not have them.",
		}),
		throttled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "projtrack",
			Subsystem: "replication",
			Name:      "throttled_total",
			Help:      "Times the writer waited for the rate limit window to reset.",
		}),
		writeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "projtrack",
			Subsystem: "replication",
			Name:      "write_latency_seconds",
			Help:      "Latency of single-row writes to the target store.",
			Buckets: []float64{
				0.001, 0.005,
				0.01, 0.05,
				0.1, 0.5,
				1, 2, 5,
			},
		}, []string{"table", "result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
