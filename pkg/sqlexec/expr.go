package sqlexec

import (
	"fmt"

	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/pkg/hnsw"
	"github.com/omendb/omendb/pkg/value"
)

// Expr is a reduced predicate/scalar expression tree. It is deliberately
// smaller than a general SQL AST: exactly the shapes the executor needs to
// evaluate WHERE clauses and vector operators (spec.md §4.10).
type Expr interface {
	isExpr()
	eval(row value.Row, schema value.Schema) (value.Value, error)
}

// ColumnRef resolves to the named column's value in a row.
type ColumnRef struct{ Column string }

func (ColumnRef) isExpr() {}

func (c ColumnRef) eval(row value.Row, schema value.Schema) (value.Value, error) {
	i := schema.IndexOf(c.Column)
	if i < 0 {
		return value.Value{}, dberr.InvalidInputf("sqlexec: unknown column %q", c.Column)
	}
	if i >= len(row) {
		return value.Value{}, dberr.InvalidInputf("sqlexec: column %q out of range for row", c.Column)
	}
	return row[i], nil
}

// Literal is a constant value.
type Literal struct{ Value value.Value }

func (Literal) isExpr() {}

func (l Literal) eval(value.Row, value.Schema) (value.Value, error) { return l.Value, nil }

// CompareOp is a scalar comparison operator.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNeq
	CmpLt
	CmpLtEq
	CmpGt
	CmpGtEq
)

// Compare is `Left <op> Right`, e.g. a column compared against a literal.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (Compare) isExpr() {}

func (c Compare) eval(row value.Row, schema value.Schema) (value.Value, error) {
	lv, err := c.Left.eval(row, schema)
	if err != nil {
		return value.Value{}, err
	}
	rv, err := c.Right.eval(row, schema)
	if err != nil {
		return value.Value{}, err
	}
	cmp := value.Compare(lv, rv)
	var result bool
	switch c.Op {
	case CmpEq:
		result = cmp == 0
	case CmpNeq:
		result = cmp != 0
	case CmpLt:
		result = cmp < 0
	case CmpLtEq:
		result = cmp <= 0
	case CmpGt:
		result = cmp > 0
	case CmpGtEq:
		result = cmp >= 0
	}
	return value.NewBoolean(result), nil
}

// LogicalOp combines two boolean expressions.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

type Logical struct {
	Op    LogicalOp
	Left  Expr
	Right Expr
}

func (Logical) isExpr() {}

func (l Logical) eval(row value.Row, schema value.Schema) (value.Value, error) {
	lv, err := l.Left.eval(row, schema)
	if err != nil {
		return value.Value{}, err
	}
	if l.Op == LogicalAnd && !lv.B {
		return value.NewBoolean(false), nil
	}
	if l.Op == LogicalOr && lv.B {
		return value.NewBoolean(true), nil
	}
	return l.Right.eval(row, schema)
}

// VectorOp is one of the three vector distance operators spec.md §4.10
// names: `<->` L2, `<#>` negative inner product, `<=>` cosine distance.
// All return Float64, grounded directly on pkg/hnsw's pluggable distance
// functions rather than reimplementing the math a second time.
type VectorOp struct {
	Fn    hnsw.DistanceFunc
	Left  Expr
	Right Expr
}

func (VectorOp) isExpr() {}

func (v VectorOp) eval(row value.Row, schema value.Schema) (value.Value, error) {
	lv, err := v.Left.eval(row, schema)
	if err != nil {
		return value.Value{}, err
	}
	rv, err := v.Right.eval(row, schema)
	if err != nil {
		return value.Value{}, err
	}
	if lv.Typ != value.Vector || rv.Typ != value.Vector {
		return value.Value{}, dberr.InvalidInputf("sqlexec: vector operator requires two vector operands")
	}
	if len(lv.Vec) != len(rv.Vec) {
		return value.Value{}, dberr.InvalidInputf("sqlexec: vector operands have mismatched dimensions %d/%d", len(lv.Vec), len(rv.Vec))
	}
	return value.NewFloat64(float64(v.Fn.Distance(lv.Vec, rv.Vec))), nil
}

// evalBool evaluates expr and requires a Boolean result, the shape every
// WHERE-clause predicate must produce.
func evalBool(expr Expr, row value.Row, schema value.Schema) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := expr.eval(row, schema)
	if err != nil {
		return false, err
	}
	if v.Typ != value.Boolean {
		return false, fmt.Errorf("sqlexec: WHERE expression did not evaluate to a boolean (got %s)", v.Typ)
	}
	return v.B, nil
}

// pkEquality extracts the literal a `WHERE pk = literal` expression
// compares against, the only shape UPDATE/DELETE accept (spec.md §4.10).
func pkEquality(expr Expr, pkColumn string) (value.Value, error) {
	cmp, ok := expr.(Compare)
	if !ok || cmp.Op != CmpEq {
		return value.Value{}, dberr.InvalidInputf("sqlexec: UPDATE/DELETE requires WHERE %s = <literal>", pkColumn)
	}
	col, ok := cmp.Left.(ColumnRef)
	lit, litOK := cmp.Right.(Literal)
	if !ok || !litOK {
		col, ok = cmp.Right.(ColumnRef)
		lit, litOK = cmp.Left.(Literal)
	}
	if !ok || !litOK || col.Column != pkColumn {
		return value.Value{}, dberr.InvalidInputf("sqlexec: UPDATE/DELETE requires WHERE %s = <literal>", pkColumn)
	}
	return lit.Value, nil
}
