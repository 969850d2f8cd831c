// Package sqlexec translates an already-parsed statement AST into calls on
// pkg/table's Catalog/Table (spec.md §4.10). No SQL parser is vendored — an
// embedding application (or a future `pkg/sqlparse`) is responsible for
// turning query text into the Statement values this package consumes, the
// same boundary the teacher's pkg/query/engine.go drew between its Query
// struct and storage.
package sqlexec

import "github.com/omendb/omendb/pkg/value"

// Statement is the sum type of every SQL form the executor accepts.
type Statement interface{ isStatement() }

// ColumnDef describes one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name       string
	Type       value.Type
	PrimaryKey bool
	Nullable   bool
}

// CreateTable maps directly onto Catalog.CreateTable; its primary key is
// the column marked PRIMARY KEY, or the first column when none is marked
// (see PrimaryKeyColumn).
type CreateTable struct {
	Table   string
	Columns []ColumnDef
}

func (CreateTable) isStatement() {}

// PrimaryKeyColumn returns the column SQL marked PRIMARY KEY, or the first
// column if none was marked explicitly.
func (c CreateTable) PrimaryKeyColumn() string {
	for _, col := range c.Columns {
		if col.PrimaryKey {
			return col.Name
		}
	}
	if len(c.Columns) == 0 {
		return ""
	}
	return c.Columns[0].Name
}

type DropTable struct {
	Table string
}

func (DropTable) isStatement() {}

// Insert carries one or more VALUES tuples for the named table.
type Insert struct {
	Table  string
	Rows   []value.Row
}

func (Insert) isStatement() {}

// AggFunc is one of the aggregate functions spec.md §4.10 names.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (f AggFunc) String() string {
	switch f {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return ""
	}
}

// SelectItem is one projected output column: either a bare column reference
// or an aggregate function applied to one.
type SelectItem struct {
	Column string // "" with Agg==AggCount means COUNT(*)
	Agg    AggFunc
	Alias  string
}

// JoinKind distinguishes INNER from LEFT per spec.md §4.10.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// Join describes a two-table nested-loop join with an equality ON clause.
type Join struct {
	Kind        JoinKind
	RightTable  string
	LeftColumn  string
	RightColumn string
}

type OrderDirection int

const (
	Asc OrderDirection = iota
	Desc
)

type OrderBy struct {
	Column    string
	Direction OrderDirection
}

// Select is SELECT ... FROM t [JOIN ...] [WHERE ...] [GROUP BY ...]
// [ORDER BY ...] [LIMIT n] [OFFSET n].
type Select struct {
	Table    string
	Star     bool
	Items    []SelectItem
	Join     *Join
	Where    Expr
	GroupBy  []string
	OrderBy  *OrderBy
	Limit    int // 0 means unset
	Offset   int
}

func (Select) isStatement() {}

// Update is restricted to WHERE pk = literal (spec.md §4.10), enforced when
// the statement executes (pkEquality rejects any other WHERE shape).
type Update struct {
	Table  string
	Sets   map[string]value.Value
	PKExpr Expr
}

func (Update) isStatement() {}

// Delete is likewise restricted to WHERE pk = literal.
type Delete struct {
	Table  string
	PKExpr Expr
}

func (Delete) isStatement() {}

type Begin struct{}

func (Begin) isStatement() {}

type Commit struct{}

func (Commit) isStatement() {}

type Rollback struct{}

func (Rollback) isStatement() {}
