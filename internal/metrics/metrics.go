// Package metrics provides Prometheus instrumentation for the OmenDB engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the engine registers. It is
// internal instrumentation: OmenDB does not serve an HTTP /metrics endpoint
// itself (the network surface is out of scope), so an embedding application
// reaches the collectors via Registry.
type Metrics struct {
	// Page manager metrics
	PageCacheHits   prometheus.Counter
	PageCacheMisses prometheus.Counter
	PageAllocsTotal prometheus.Counter
	PageFreesTotal  prometheus.Counter

	// WAL metrics
	WalEntriesTotal   *prometheus.CounterVec
	WalFsyncsTotal    prometheus.Counter
	WalRotationsTotal prometheus.Counter
	WalBytesWritten   prometheus.Counter

	// MVCC metrics
	TxnCommitsTotal   prometheus.Counter
	TxnConflictsTotal prometheus.Counter
	TxnAbortsTotal    prometheus.Counter
	TxnActiveGauge    prometheus.Gauge
	TxnDuration       prometheus.Histogram

	// Query routing metrics
	QueryClassifiedTotal *prometheus.CounterVec
	QueryRoutedTotal     *prometheus.CounterVec
	QueryDecisionLatency prometheus.Histogram

	// HNSW metrics
	HnswInsertsTotal prometheus.Counter
	HnswSearchTotal  prometheus.Counter
	HnswSearchLatency prometheus.Histogram

	// SQL executor metrics
	SqlQueriesTotal     *prometheus.CounterVec
	SqlQueryErrorsTotal *prometheus.CounterVec
	SqlQueryLatency     prometheus.Histogram

	registry    *prometheus.Registry
	startTime   time.Time
	uptimeGauge prometheus.Gauge
}

// NewMetrics creates and registers all collectors against a fresh registry,
// the way the teacher groups promauto constructors under one struct.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		PageCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_page_cache_hits_total",
			Help: "Total page cache hits",
		}),
		PageCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_page_cache_misses_total",
			Help: "Total page cache misses",
		}),
		PageAllocsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_page_allocs_total",
			Help: "Total pages allocated",
		}),
		PageFreesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_page_frees_total",
			Help: "Total pages freed",
		}),

		WalEntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "omendb_wal_entries_total",
			Help: "Total WAL entries written by operation type",
		}, []string{"op"}),
		WalFsyncsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_wal_fsyncs_total",
			Help: "Total WAL fsync calls",
		}),
		WalRotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_wal_rotations_total",
			Help: "Total WAL file rotations",
		}),
		WalBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_wal_bytes_written_total",
			Help: "Total bytes written to the WAL",
		}),

		TxnCommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_txn_commits_total",
			Help: "Total committed transactions",
		}),
		TxnConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_txn_conflicts_total",
			Help: "Total first-committer-wins conflicts",
		}),
		TxnAbortsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_txn_aborts_total",
			Help: "Total explicitly aborted transactions",
		}),
		TxnActiveGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "omendb_txn_active",
			Help: "Currently active transactions",
		}),
		TxnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "omendb_txn_duration_seconds",
			Help:    "Transaction duration from begin to commit/rollback",
			Buckets: prometheus.DefBuckets,
		}),

		QueryClassifiedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "omendb_query_classified_total",
			Help: "Queries classified by kind",
		}, []string{"kind"}),
		QueryRoutedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "omendb_query_routed_total",
			Help: "Queries routed by execution path",
		}, []string{"path"}),
		QueryDecisionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "omendb_query_decision_latency_seconds",
			Help:    "Latency of the classify+route decision",
			Buckets: []float64{.0000001, .000001, .00001, .0001, .001, .01},
		}),

		HnswInsertsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_hnsw_inserts_total",
			Help: "Total vectors inserted into HNSW indexes",
		}),
		HnswSearchTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "omendb_hnsw_searches_total",
			Help: "Total HNSW nearest-neighbor searches",
		}),
		HnswSearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "omendb_hnsw_search_latency_seconds",
			Help:    "HNSW search latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.SqlQueriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "omendb_sql_queries_total",
		Help: "Total SQL statements executed, by statement kind",
	}, []string{"kind"})
	m.SqlQueryErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "omendb_sql_query_errors_total",
		Help: "Total SQL statement failures, by reason",
	}, []string{"reason"})
	m.SqlQueryLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "omendb_sql_query_latency_seconds",
		Help:    "SQL statement execution latency",
		Buckets: prometheus.DefBuckets,
	})

	m.uptimeGauge = factory.NewGauge(prometheus.GaugeOpts{
		Name: "omendb_uptime_seconds",
		Help: "Engine uptime in seconds",
	})

	return m
}

// Registry exposes the underlying Prometheus registry so an embedding
// application can serve it however it likes (this package never opens a
// network listener itself).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordWalEntry records a WAL append by operation name.
func (m *Metrics) RecordWalEntry(op string, bytes int) {
	m.WalEntriesTotal.WithLabelValues(op).Inc()
	m.WalBytesWritten.Add(float64(bytes))
}

// RecordTxnCommit records a completed transaction, conflict or not.
func (m *Metrics) RecordTxnCommit(duration time.Duration, conflict bool) {
	m.TxnDuration.Observe(duration.Seconds())
	if conflict {
		m.TxnConflictsTotal.Inc()
		return
	}
	m.TxnCommitsTotal.Inc()
}

// RecordQueryRoute records a classify+route decision.
func (m *Metrics) RecordQueryRoute(kind, path string, decisionLatency time.Duration) {
	m.QueryClassifiedTotal.WithLabelValues(kind).Inc()
	m.QueryRoutedTotal.WithLabelValues(path).Inc()
	m.QueryDecisionLatency.Observe(decisionLatency.Seconds())
}

// RecordSqlQuery records a successful SQL statement execution.
func (m *Metrics) RecordSqlQuery(kind string, latency time.Duration) {
	m.SqlQueriesTotal.WithLabelValues(kind).Inc()
	m.SqlQueryLatency.Observe(latency.Seconds())
}

// RecordSqlQueryError records a failed SQL statement by reason.
func (m *Metrics) RecordSqlQueryError(reason string) {
	m.SqlQueryErrorsTotal.WithLabelValues(reason).Inc()
}

// Uptime reports engine uptime and refreshes the gauge.
func (m *Metrics) Uptime() time.Duration {
	d := time.Since(m.startTime)
	m.uptimeGauge.Set(d.Seconds())
	return d
}
