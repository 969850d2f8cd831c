// Package query classifies filter predicates against a table's primary key
// and routes them to the cheaper of two execution paths: the learned index
// or a vectorized scan. It has no SQL parser of its own — pkg/sqlexec hands
// it an already-parsed filter list, the same boundary the original engine
// draws between its AST and storage layers.
package query

import "github.com/omendb/omendb/pkg/value"

// FilterOp is a comparison operator appearing in a single-column predicate.
type FilterOp int

const (
	OpEq FilterOp = iota
	OpGt
	OpGtEq
	OpLt
	OpLtEq
)

// FilterExpr is one predicate in a query's WHERE clause. The classifier only
// understands Filter and BetweenFilter; anything else (subqueries, OR,
// multi-column predicates) is opaque to it and falls through to FullScan.
type FilterExpr interface {
	isFilterExpr()
}

// Filter is a single binary comparison: `column op literal`.
type Filter struct {
	Column string
	Op     FilterOp
	Value  value.Value
}

func (Filter) isFilterExpr() {}

// BetweenFilter is `column BETWEEN low AND high`.
type BetweenFilter struct {
	Column  string
	Low     value.Value
	High    value.Value
	Negated bool
}

func (BetweenFilter) isFilterExpr() {}

// QueryKind is the classifier's verdict for a filter list.
type QueryKind int

const (
	KindPointQuery QueryKind = iota
	KindRangeQuery
	KindAggregate
	KindFullScan
	KindComplex
)

func (k QueryKind) String() string {
	switch k {
	case KindPointQuery:
		return "point"
	case KindRangeQuery:
		return "range"
	case KindAggregate:
		return "aggregate"
	case KindFullScan:
		return "full_scan"
	case KindComplex:
		return "complex"
	default:
		return "unknown"
	}
}

// QueryType is the classification result. Only the fields relevant to Kind
// are populated: PKValue for KindPointQuery, Start/End for KindRangeQuery.
type QueryType struct {
	Kind    QueryKind
	PKValue value.Value
	Start   value.Value
	End     value.Value
}

func (q QueryType) IsPointQuery() bool  { return q.Kind == KindPointQuery }
func (q QueryType) IsRangeQuery() bool  { return q.Kind == KindRangeQuery }
func (q QueryType) IsAggregate() bool   { return q.Kind == KindAggregate }

// ExecutionPath is the chosen engine for a classified query.
type ExecutionPath int

const (
	PathLearnedIndex ExecutionPath = iota
	PathVectorizedScan
)

func (p ExecutionPath) String() string {
	if p == PathLearnedIndex {
		return "learned_index"
	}
	return "vectorized_scan"
}
