package query

import (
	"sync/atomic"
	"time"

	"github.com/omendb/omendb/internal/metrics"
)

// RouterMetrics atomically tracks routing decisions for a single router
// instance — in-process counters distinct from the optional Prometheus
// export below. Grounded on query_router.rs's RouterMetrics (AtomicU64
// fields become atomic.Uint64, matching Go 1.19+ idiom).
type RouterMetrics struct {
	totalQueries        atomic.Uint64
	learnedIndexRouted  atomic.Uint64
	vectorizedRouted    atomic.Uint64
	totalDecisionTimeNs atomic.Uint64
	pointQueries        atomic.Uint64
	rangeQueries        atomic.Uint64
	aggregateQueries    atomic.Uint64
	fullScans           atomic.Uint64
}

// AvgDecisionTimeNs returns the mean routing-decision latency in
// nanoseconds across every query routed so far.
func (m *RouterMetrics) AvgDecisionTimeNs() uint64 {
	total := m.totalQueries.Load()
	if total == 0 {
		return 0
	}
	return m.totalDecisionTimeNs.Load() / total
}

// RoutingRatio returns the fraction of queries sent to the learned index
// versus the vectorized scan, in [0,1].
func (m *RouterMetrics) RoutingRatio() (learnedIndex, vectorized float64) {
	total := float64(m.totalQueries.Load())
	if total == 0 {
		return 0, 0
	}
	return float64(m.learnedIndexRouted.Load()) / total, float64(m.vectorizedRouted.Load()) / total
}

func (m *RouterMetrics) reset() {
	m.totalQueries.Store(0)
	m.learnedIndexRouted.Store(0)
	m.vectorizedRouted.Store(0)
	m.totalDecisionTimeNs.Store(0)
	m.pointQueries.Store(0)
	m.rangeQueries.Store(0)
	m.aggregateQueries.Store(0)
	m.fullScans.Store(0)
}

// RoutingDecision is the result of routing one filter list: its
// classification, the chosen execution path, and diagnostics about the
// decision itself.
type RoutingDecision struct {
	QueryType       QueryType
	ExecutionPath   ExecutionPath
	EstimatedCostNs uint64
	DecisionTimeNs  uint64
}

// QueryRouter classifies a filter list, estimates the cheaper execution
// path, and records the decision — the glue spec.md §4.9 calls "Router
// atomically tracks counts... and aggregate decision latency". Grounded on
// query_router.rs's QueryRouter.
type QueryRouter struct {
	classifier *QueryClassifier
	estimator  *CostEstimator
	metrics    *RouterMetrics
	prom       *metrics.Metrics
}

// NewQueryRouter builds a router for one table: pkColumn identifies its
// primary key, tableSize seeds the cost estimator. prom may be nil — when
// present, every routing decision is also recorded into the shared
// Prometheus registry via Metrics.RecordQueryRoute.
func NewQueryRouter(pkColumn string, tableSize int, prom *metrics.Metrics) *QueryRouter {
	return &QueryRouter{
		classifier: NewQueryClassifier(pkColumn),
		estimator:  NewCostEstimator(tableSize),
		metrics:    &RouterMetrics{},
		prom:       prom,
	}
}

// NewQueryRouterWithThreshold is NewQueryRouter with a custom range
// threshold instead of the default 100 rows.
func NewQueryRouterWithThreshold(pkColumn string, tableSize, rangeThreshold int, prom *metrics.Metrics) *QueryRouter {
	return &QueryRouter{
		classifier: NewQueryClassifier(pkColumn),
		estimator:  NewCostEstimatorWithThreshold(tableSize, rangeThreshold),
		metrics:    &RouterMetrics{},
		prom:       prom,
	}
}

// Route classifies filters, estimates cost, and records the decision.
func (r *QueryRouter) Route(filters []FilterExpr) RoutingDecision {
	start := time.Now()

	qt := r.classifier.ClassifyFilters(filters)
	path := r.estimator.Estimate(qt)
	cost := r.estimator.EstimateCostNS(path, qt)

	decisionTime := time.Since(start)
	r.updateMetrics(qt, path, decisionTime)

	return RoutingDecision{
		QueryType:       qt,
		ExecutionPath:   path,
		EstimatedCostNs: cost,
		DecisionTimeNs:  uint64(decisionTime.Nanoseconds()),
	}
}

func (r *QueryRouter) updateMetrics(qt QueryType, path ExecutionPath, decisionTime time.Duration) {
	r.metrics.totalQueries.Add(1)
	r.metrics.totalDecisionTimeNs.Add(uint64(decisionTime.Nanoseconds()))

	switch path {
	case PathLearnedIndex:
		r.metrics.learnedIndexRouted.Add(1)
	case PathVectorizedScan:
		r.metrics.vectorizedRouted.Add(1)
	}

	switch qt.Kind {
	case KindPointQuery:
		r.metrics.pointQueries.Add(1)
	case KindRangeQuery:
		r.metrics.rangeQueries.Add(1)
	case KindAggregate:
		r.metrics.aggregateQueries.Add(1)
	case KindFullScan:
		r.metrics.fullScans.Add(1)
	case KindComplex:
		// not tracked separately, matching the original
	}

	if r.prom != nil {
		r.prom.RecordQueryRoute(qt.Kind.String(), path.String(), decisionTime)
	}
}

// Metrics returns the router's in-process counters.
func (r *QueryRouter) Metrics() *RouterMetrics { return r.metrics }

// ResetMetrics zeroes every counter.
func (r *QueryRouter) ResetMetrics() { r.metrics.reset() }
