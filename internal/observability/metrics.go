package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	memorySearchDuration prometheus.Histogram
	memoryWriteDuration  prometheus.Histogram
	memoryEntriesTotal   prometheus.Gauge
	accessLogTotal       prometheus.Counter
	indexerScansTotal    prometheus.Counter
	indexerFilesIndexed  prometheus.Counter
	reconcileOrphans     prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			memorySearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_write_duration_seconds",
					Help:    "Memory add duration in seconds, embedding included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryEntriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Total memory entries stored.",
				},
			),
			accessLogTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_access_log_total",
					Help: "Total access-log rows appended.",
				},
			),
			indexerScansTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "indexer_scans_total",
					Help: "Total workspace tree scans performed by the auto-indexer.",
				},
			),
			indexerFilesIndexed: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "indexer_files_indexed_total",
					Help: "Total files indexed by the auto-indexer.",
				},
			),
			reconcileOrphans: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_reconcile_orphans_total",
					Help: "Total orphan index rows removed by reconciliation.",
				},
			),
		}

		prometheus.MustRegister(
			m.memorySearchDuration,
			m.memoryWriteDuration,
			m.memoryEntriesTotal,
			m.accessLogTotal,
			m.indexerScansTotal,
			m.indexerFilesIndexed,
			m.reconcileOrphans,
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

func RecordMemorySearch(duration time.Duration) {
	getMetrics().memorySearchDuration.Observe(duration.Seconds())
}

func RecordMemoryWrite(duration time.Duration) {
	getMetrics().memoryWriteDuration.Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	getMetrics().memoryEntriesTotal.Set(float64(total))
}

func RecordAccessLogged() {
	getMetrics().accessLogTotal.Inc()
}

func RecordIndexerScan(filesIndexed int) {
	m := getMetrics()
	m.indexerScansTotal.Inc()
	m.indexerFilesIndexed.Add(float64(filesIndexed))
}

func RecordReconcileOrphans(count int64) {
	if count > 0 {
		getMetrics().reconcileOrphans.Add(float64(count))
	}
}
