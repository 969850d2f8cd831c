package query

import (
	"testing"

	"github.com/omendb/omendb/pkg/value"
)

func TestClassifyPointQuery(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters([]FilterExpr{Filter{Column: "id", Op: OpEq, Value: value.NewInt64(42)}})

	if qt.Kind != KindPointQuery || qt.PKValue.I64 != 42 {
		t.Fatalf("ClassifyFilters = %+v, want PointQuery(42)", qt)
	}
}

func TestClassifyRangeQueryBetween(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters([]FilterExpr{
		BetweenFilter{Column: "id", Low: value.NewInt64(10), High: value.NewInt64(100)},
	})

	if qt.Kind != KindRangeQuery || qt.Start.I64 != 10 || qt.End.I64 != 100 {
		t.Fatalf("ClassifyFilters = %+v, want RangeQuery(10, 100)", qt)
	}
}

func TestClassifyRangeQueryOperators(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters([]FilterExpr{
		Filter{Column: "id", Op: OpGtEq, Value: value.NewInt64(10)},
		Filter{Column: "id", Op: OpLtEq, Value: value.NewInt64(100)},
	})

	if qt.Kind != KindRangeQuery || qt.Start.I64 != 10 || qt.End.I64 != 100 {
		t.Fatalf("ClassifyFilters = %+v, want RangeQuery(10, 100)", qt)
	}
}

func TestClassifyFullScanOnNonPKColumn(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters([]FilterExpr{Filter{Column: "name", Op: OpEq, Value: value.NewText("Alice")}})

	if qt.Kind != KindFullScan {
		t.Fatalf("ClassifyFilters = %+v, want FullScan", qt)
	}
}

func TestClassifyNoFilters(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters(nil)

	if qt.Kind != KindFullScan {
		t.Fatalf("ClassifyFilters(nil) = %+v, want FullScan", qt)
	}
}

func TestClassifyNegatedBetweenIsNotARange(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters([]FilterExpr{
		BetweenFilter{Column: "id", Low: value.NewInt64(10), High: value.NewInt64(100), Negated: true},
	})

	if qt.Kind != KindFullScan {
		t.Fatalf("ClassifyFilters(negated between) = %+v, want FullScan", qt)
	}
}

func TestClassifyOnePendingBoundIsNotARange(t *testing.T) {
	c := NewQueryClassifier("id")
	qt := c.ClassifyFilters([]FilterExpr{Filter{Column: "id", Op: OpGtEq, Value: value.NewInt64(10)}})

	if qt.Kind != KindFullScan {
		t.Fatalf("ClassifyFilters(lower bound only) = %+v, want FullScan", qt)
	}
}
