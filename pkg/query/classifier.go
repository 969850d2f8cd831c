package query

import "github.com/omendb/omendb/pkg/value"

// QueryClassifier inspects a filter list against one table's primary key
// column and labels it PointQuery, RangeQuery, or FullScan. Grounded on
// query_classifier.rs's QueryClassifier; DataFusion's Expr/Operator/
// ScalarValue types are replaced by the FilterExpr/Filter/BetweenFilter
// types in types.go, since no SQL-expression library is wired (pkg/sqlexec
// owns parsing and hands this package an already-reduced filter list).
type QueryClassifier struct {
	pkColumn string
}

// NewQueryClassifier builds a classifier for the named primary key column.
func NewQueryClassifier(pkColumn string) *QueryClassifier {
	return &QueryClassifier{pkColumn: pkColumn}
}

// ClassifyFilters applies the rules from spec.md §4.9 in order: an equality
// filter on the PK wins first, then a BETWEEN (or >=/<= pair) on the PK,
// otherwise FullScan. Aggregate detection happens one level up, in the SQL
// executor, which has the projection list this package never sees.
func (c *QueryClassifier) ClassifyFilters(filters []FilterExpr) QueryType {
	if pk, ok := c.detectPointQuery(filters); ok {
		return QueryType{Kind: KindPointQuery, PKValue: pk}
	}
	if start, end, ok := c.detectRangeQuery(filters); ok {
		return QueryType{Kind: KindRangeQuery, Start: start, End: end}
	}
	return QueryType{Kind: KindFullScan}
}

func (c *QueryClassifier) detectPointQuery(filters []FilterExpr) (value.Value, bool) {
	for _, expr := range filters {
		f, ok := expr.(Filter)
		if !ok || f.Op != OpEq || f.Column != c.pkColumn {
			continue
		}
		return f.Value, true
	}
	return value.Value{}, false
}

// detectRangeQuery recognizes an explicit BetweenFilter on the PK, or a pair
// of >=/<= filters on the PK acting as an AND'd range — matching the
// original's two independent detection paths (Expr::Between, and scanning
// for GtEq/Gt plus LtEq/Lt on the same column).
func (c *QueryClassifier) detectRangeQuery(filters []FilterExpr) (start, end value.Value, ok bool) {
	for _, expr := range filters {
		b, isBetween := expr.(BetweenFilter)
		if !isBetween || b.Negated || b.Column != c.pkColumn {
			continue
		}
		return b.Low, b.High, true
	}

	var lower, upper value.Value
	haveLower, haveUpper := false, false
	for _, expr := range filters {
		f, isFilter := expr.(Filter)
		if !isFilter || f.Column != c.pkColumn {
			continue
		}
		switch f.Op {
		case OpGtEq, OpGt:
			lower, haveLower = f.Value, true
		case OpLtEq, OpLt:
			upper, haveUpper = f.Value, true
		}
	}
	if haveLower && haveUpper {
		return lower, upper, true
	}
	return value.Value{}, value.Value{}, false
}
