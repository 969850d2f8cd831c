package query

import (
	"testing"

	"github.com/omendb/omendb/pkg/value"
)

func TestRoutePointQuery(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)
	decision := r.Route([]FilterExpr{Filter{Column: "id", Op: OpEq, Value: value.NewInt64(42)}})

	if decision.QueryType.Kind != KindPointQuery || decision.QueryType.PKValue.I64 != 42 {
		t.Fatalf("QueryType = %+v, want PointQuery(42)", decision.QueryType)
	}
	if decision.ExecutionPath != PathLearnedIndex {
		t.Errorf("ExecutionPath = %v, want PathLearnedIndex", decision.ExecutionPath)
	}
	if decision.EstimatedCostNs != alexPointQueryNs {
		t.Errorf("EstimatedCostNs = %d, want %d", decision.EstimatedCostNs, uint64(alexPointQueryNs))
	}
}

func TestRouteSmallRangeQuery(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)
	decision := r.Route([]FilterExpr{
		BetweenFilter{Column: "id", Low: value.NewInt64(100), High: value.NewInt64(150)},
	})

	if decision.QueryType.Kind != KindRangeQuery {
		t.Fatalf("QueryType = %+v, want RangeQuery", decision.QueryType)
	}
	if decision.ExecutionPath != PathLearnedIndex {
		t.Errorf("ExecutionPath = %v, want PathLearnedIndex", decision.ExecutionPath)
	}
}

func TestRouteLargeRangeQuery(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)
	decision := r.Route([]FilterExpr{
		BetweenFilter{Column: "id", Low: value.NewInt64(100), High: value.NewInt64(1100)},
	})

	if decision.ExecutionPath != PathVectorizedScan {
		t.Errorf("ExecutionPath = %v, want PathVectorizedScan", decision.ExecutionPath)
	}
}

func TestRouteFullScan(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)
	decision := r.Route([]FilterExpr{Filter{Column: "name", Op: OpEq, Value: value.NewText("Alice")}})

	if decision.QueryType.Kind != KindFullScan {
		t.Fatalf("QueryType = %+v, want FullScan", decision.QueryType)
	}
	if decision.ExecutionPath != PathVectorizedScan {
		t.Errorf("ExecutionPath = %v, want PathVectorizedScan", decision.ExecutionPath)
	}
}

func TestRoutingMetrics(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)

	r.Route([]FilterExpr{Filter{Column: "id", Op: OpEq, Value: value.NewInt64(42)}})
	r.Route([]FilterExpr{BetweenFilter{Column: "id", Low: value.NewInt64(100), High: value.NewInt64(150)}})

	m := r.Metrics()
	if m.totalQueries.Load() != 2 {
		t.Errorf("totalQueries = %d, want 2", m.totalQueries.Load())
	}
	if m.learnedIndexRouted.Load() != 2 {
		t.Errorf("learnedIndexRouted = %d, want 2", m.learnedIndexRouted.Load())
	}
	if m.pointQueries.Load() != 1 || m.rangeQueries.Load() != 1 {
		t.Errorf("pointQueries/rangeQueries = %d/%d, want 1/1", m.pointQueries.Load(), m.rangeQueries.Load())
	}

	learnedRatio, vectorizedRatio := m.RoutingRatio()
	if learnedRatio != 1.0 || vectorizedRatio != 0.0 {
		t.Errorf("RoutingRatio = %v/%v, want 1.0/0.0", learnedRatio, vectorizedRatio)
	}
}

func TestDecisionTimeTracking(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)
	decision := r.Route([]FilterExpr{Filter{Column: "id", Op: OpEq, Value: value.NewInt64(42)}})

	if decision.DecisionTimeNs >= 1_000_000 {
		t.Errorf("DecisionTimeNs = %d, want <1ms", decision.DecisionTimeNs)
	}
	avg := r.Metrics().AvgDecisionTimeNs()
	if avg == 0 || avg >= 1_000_000 {
		t.Errorf("AvgDecisionTimeNs = %d, want in (0, 1ms)", avg)
	}
}

func TestRouterCustomThreshold(t *testing.T) {
	r := NewQueryRouterWithThreshold("id", 1_000_000, 500, nil)
	decision := r.Route([]FilterExpr{
		BetweenFilter{Column: "id", Low: value.NewInt64(100), High: value.NewInt64(300)},
	})

	if decision.ExecutionPath != PathLearnedIndex {
		t.Errorf("ExecutionPath = %v, want PathLearnedIndex", decision.ExecutionPath)
	}
}

func TestMetricsReset(t *testing.T) {
	r := NewQueryRouter("id", 1_000_000, nil)
	r.Route([]FilterExpr{Filter{Column: "id", Op: OpEq, Value: value.NewInt64(42)}})

	if r.Metrics().totalQueries.Load() != 1 {
		t.Fatalf("totalQueries = %d, want 1", r.Metrics().totalQueries.Load())
	}
	r.ResetMetrics()
	if r.Metrics().totalQueries.Load() != 0 {
		t.Errorf("totalQueries after reset = %d, want 0", r.Metrics().totalQueries.Load())
	}
}
