package sqlexec

import (
	"sort"
	"time"

	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/internal/logger"
	"github.com/omendb/omendb/internal/metrics"
	"github.com/omendb/omendb/pkg/query"
	"github.com/omendb/omendb/pkg/table"
	"github.com/omendb/omendb/pkg/value"
)

// QueryConfig bounds one statement's execution (spec.md §4.10: "Per-query
// bounds enforce a wall-clock timeout, a max-rows result cap, and a
// max-query-size input cap").
type QueryConfig struct {
	Timeout       time.Duration
	MaxRows       int
	MaxQueryBytes int
}

// DefaultQueryConfig matches spec.md §6's defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Timeout:       30 * time.Second,
		MaxRows:       1_000_000,
		MaxQueryBytes: 10 * 1024 * 1024,
	}
}

// TxnManager is the interface BEGIN/COMMIT/ROLLBACK dispatch to when
// present (spec.md §4.10: "BEGIN/COMMIT/ROLLBACK are dispatched to an
// optional TransactionManager"). pkg/mvcc.Oracle does not implement it
// as is (its Begin takes a Mode, Commit returns a commit timestamp, and it
// has Abort rather than Rollback), so an embedder supplies an adapter; the
// executor stays agnostic of the concrete type.
type TxnManager interface {
	Begin() (txnID uint64)
	Commit(txnID uint64) error
	Rollback(txnID uint64)
}

// Executor runs Statements against a Catalog (spec.md §4.10 "SQL executor
// glue: translate parsed AST into calls on Table/Catalog").
//
// Grounded on the original's SqlEngine (sql_engine.rs): the same
// config/transaction-manager/current-transaction shape, generalized from
// sqlparser::ast::Statement dispatch to this package's reduced Statement
// sum type.
type Executor struct {
	catalog    *table.Catalog
	config     QueryConfig
	txnManager TxnManager
	currentTxn uint64 // 0 means no open transaction
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// New creates an executor with default bounds and no transaction support.
func New(catalog *table.Catalog, log *logger.Logger, m *metrics.Metrics) *Executor {
	return &Executor{catalog: catalog, config: DefaultQueryConfig(), log: log, metrics: m}
}

// WithConfig overrides the default per-query bounds.
func (e *Executor) WithConfig(cfg QueryConfig) *Executor {
	e.config = cfg
	return e
}

// WithTransactions enables BEGIN/COMMIT/ROLLBACK dispatch.
func (e *Executor) WithTransactions(tm TxnManager) *Executor {
	e.txnManager = tm
	return e
}

// ExecuteSQL checks sqlText against the max-query-size bound before running
// the already-parsed stmt — the one place raw input size can be enforced
// without this package owning a parser.
func (e *Executor) ExecuteSQL(sqlText string, stmt Statement) (ExecutionResult, error) {
	if len(sqlText) > e.config.MaxQueryBytes {
		e.recordError("query_too_large")
		return ExecutionResult{}, dberr.InvalidInputf("sqlexec: query size %d exceeds limit %d", len(sqlText), e.config.MaxQueryBytes)
	}
	return e.Execute(stmt)
}

// Execute runs a single statement to completion, under the executor's
// configured wall-clock timeout.
func (e *Executor) Execute(stmt Statement) (ExecutionResult, error) {
	start := time.Now()
	deadline := start.Add(e.config.Timeout)

	result, err := e.dispatch(stmt, deadline)
	if err != nil {
		e.recordError(errorReason(err))
		return ExecutionResult{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordSqlQuery(statementKind(stmt), time.Since(start))
	}
	return result, nil
}

func (e *Executor) recordError(reason string) {
	if e.metrics != nil {
		e.metrics.RecordSqlQueryError(reason)
	}
}

func errorReason(err error) string {
	if de, ok := err.(*dberr.Error); ok {
		return de.Kind().String()
	}
	return "unknown"
}

func statementKind(stmt Statement) string {
	switch stmt.(type) {
	case CreateTable:
		return "create_table"
	case DropTable:
		return "drop_table"
	case Insert:
		return "insert"
	case Select:
		return "select"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case Begin:
		return "begin"
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	default:
		return "unknown"
	}
}

func checkDeadline(deadline time.Time) error {
	if time.Now().After(deadline) {
		return dberr.Timeoutf("sqlexec: query exceeded its wall-clock timeout")
	}
	return nil
}

func (e *Executor) dispatch(stmt Statement, deadline time.Time) (ExecutionResult, error) {
	switch s := stmt.(type) {
	case CreateTable:
		return e.executeCreateTable(s)
	case DropTable:
		return e.executeDropTable(s)
	case Insert:
		return e.executeInsert(s)
	case Select:
		return e.executeSelect(s, deadline)
	case Update:
		return e.executeUpdate(s)
	case Delete:
		return e.executeDelete(s)
	case Begin:
		return e.executeBegin()
	case Commit:
		return e.executeCommit()
	case Rollback:
		return e.executeRollback()
	default:
		return ExecutionResult{}, dberr.InvalidInputf("sqlexec: unsupported statement %T", stmt)
	}
}

func (e *Executor) executeCreateTable(s CreateTable) (ExecutionResult, error) {
	fields := make([]value.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = value.Field{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	schema := value.NewSchema(fields...)
	if err := e.catalog.CreateTable(s.Table, schema, s.PrimaryKeyColumn()); err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{Kind: ResultCreated}, nil
}

func (e *Executor) executeDropTable(s DropTable) (ExecutionResult, error) {
	if err := e.catalog.DropTable(s.Table); err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{Kind: ResultDropped}, nil
}

func (e *Executor) executeInsert(s Insert) (ExecutionResult, error) {
	n := 0
	for _, row := range s.Rows {
		if err := e.catalog.InsertRow(s.Table, row); err != nil {
			return ExecutionResult{}, err
		}
		n++
	}
	return ExecutionResult{Kind: ResultInserted, Count: n}, nil
}

// executeUpdate enforces the WHERE pk = literal restriction spec.md §4.10
// names explicitly.
func (e *Executor) executeUpdate(s Update) (ExecutionResult, error) {
	t, err := e.catalog.GetTable(s.Table)
	if err != nil {
		return ExecutionResult{}, err
	}
	pkValue, err := pkEquality(s.PKExpr, t.PrimaryKey())
	if err != nil {
		return ExecutionResult{}, err
	}
	existing, ok, err := t.Get(pkValue)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !ok {
		return ExecutionResult{Kind: ResultUpdated, Count: 0}, nil
	}

	updated := append(value.Row(nil), existing...)
	schema := t.Schema()
	for col, v := range s.Sets {
		i := schema.IndexOf(col)
		if i < 0 {
			return ExecutionResult{}, dberr.InvalidInputf("sqlexec: unknown column %q", col)
		}
		if col == t.PrimaryKey() {
			return ExecutionResult{}, dberr.InvalidInputf("sqlexec: primary key column %q is immutable", col)
		}
		updated[i] = v
	}

	n, err := t.Update(pkValue, updated)
	if err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{Kind: ResultUpdated, Count: n}, nil
}

func (e *Executor) executeDelete(s Delete) (ExecutionResult, error) {
	t, err := e.catalog.GetTable(s.Table)
	if err != nil {
		return ExecutionResult{}, err
	}
	pkValue, err := pkEquality(s.PKExpr, t.PrimaryKey())
	if err != nil {
		return ExecutionResult{}, err
	}
	n, err := t.Delete(pkValue)
	if err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{Kind: ResultDeleted, Count: n}, nil
}

func (e *Executor) executeBegin() (ExecutionResult, error) {
	if e.txnManager == nil {
		return ExecutionResult{}, dberr.Unsupportedf("sqlexec: no transaction manager configured")
	}
	id := e.txnManager.Begin()
	e.currentTxn = id
	return ExecutionResult{Kind: ResultTxnStarted, TxnID: id}, nil
}

func (e *Executor) executeCommit() (ExecutionResult, error) {
	if e.txnManager == nil || e.currentTxn == 0 {
		return ExecutionResult{}, dberr.InvalidInputf("sqlexec: no open transaction")
	}
	id := e.currentTxn
	if err := e.txnManager.Commit(id); err != nil {
		return ExecutionResult{}, err
	}
	e.currentTxn = 0
	return ExecutionResult{Kind: ResultTxnCommitted, TxnID: id}, nil
}

func (e *Executor) executeRollback() (ExecutionResult, error) {
	if e.txnManager == nil || e.currentTxn == 0 {
		return ExecutionResult{}, dberr.InvalidInputf("sqlexec: no open transaction")
	}
	id := e.currentTxn
	e.txnManager.Rollback(id)
	e.currentTxn = 0
	return ExecutionResult{Kind: ResultTxnRolledBack, TxnID: id}, nil
}

// executeSelect classifies the WHERE clause's leading PK predicate (if any)
// through pkg/query's router to pick between a learned-index lookup and a
// vectorized scan for candidate rows, then applies the full WHERE
// expression as a residual filter so the result is correct regardless of
// which path fetched the candidates.
func (e *Executor) executeSelect(s Select, deadline time.Time) (ExecutionResult, error) {
	t, err := e.catalog.GetTable(s.Table)
	if err != nil {
		return ExecutionResult{}, err
	}

	var rows []value.Row
	if s.Join != nil {
		rows, err = e.executeJoin(t, s)
	} else {
		rows, err = e.fetchCandidates(t, s.Where)
	}
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := checkDeadline(deadline); err != nil {
		return ExecutionResult{}, err
	}

	schema := t.Schema()
	filtered := rows[:0]
	for _, r := range rows {
		ok, err := evalBool(s.Where, r, schema)
		if err != nil {
			return ExecutionResult{}, err
		}
		if ok {
			filtered = append(filtered, r)
		}
	}
	rows = filtered

	result, err := e.project(schema, rows, s)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := checkDeadline(deadline); err != nil {
		return ExecutionResult{}, err
	}

	if len(result.Rows) > e.config.MaxRows {
		result.Rows = result.Rows[:e.config.MaxRows]
	}
	return result, nil
}

// fetchCandidates routes a single-table WHERE clause through the PK
// classifier, falling back to a full scan when no PK predicate is present
// or the predicate isn't a pure AND-chain the router understands.
func (e *Executor) fetchCandidates(t *table.Table, where Expr) ([]value.Row, error) {
	filters, ok := reduceToFilters(where, t.PrimaryKey())
	if !ok {
		return t.ScanAll()
	}

	router := query.NewQueryRouter(t.PrimaryKey(), t.RowCount(), e.metrics)
	decision := router.Route(filters)

	switch {
	case decision.QueryType.IsPointQuery():
		row, ok, err := t.Get(decision.QueryType.PKValue)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []value.Row{row}, nil
	case decision.QueryType.IsRangeQuery() && decision.ExecutionPath == query.PathLearnedIndex:
		return t.RangeQuery(decision.QueryType.Start, decision.QueryType.End)
	default:
		return t.ScanAll()
	}
}

// reduceToFilters walks an AND-only expression tree collecting Compare
// nodes that reference the primary key column, the shape pkg/query's
// classifier expects. Any OR, non-PK comparison, or unsupported node
// fails the reduction (ok=false) and the caller falls back to a full scan.
func reduceToFilters(expr Expr, pkColumn string) ([]query.FilterExpr, bool) {
	if expr == nil {
		return nil, false
	}
	var filters []query.FilterExpr
	var walk func(e Expr) bool
	walk = func(e Expr) bool {
		switch v := e.(type) {
		case Logical:
			if v.Op != LogicalAnd {
				return false
			}
			return walk(v.Left) && walk(v.Right)
		case Compare:
			col, colOK := v.Left.(ColumnRef)
			lit, litOK := v.Right.(Literal)
			if !colOK || !litOK {
				col, colOK = v.Right.(ColumnRef)
				lit, litOK = v.Left.(Literal)
			}
			if !colOK || !litOK || col.Column != pkColumn {
				return false
			}
			op, ok := toFilterOp(v.Op)
			if !ok {
				return false
			}
			filters = append(filters, query.Filter{Column: col.Column, Op: op, Value: lit.Value})
			return true
		default:
			return false
		}
	}
	if !walk(expr) {
		return nil, false
	}
	return filters, true
}

func toFilterOp(op CompareOp) (query.FilterOp, bool) {
	switch op {
	case CmpEq:
		return query.OpEq, true
	case CmpGt:
		return query.OpGt, true
	case CmpGtEq:
		return query.OpGtEq, true
	case CmpLt:
		return query.OpLt, true
	case CmpLtEq:
		return query.OpLtEq, true
	default:
		return 0, false
	}
}

// executeJoin implements the nested-loop INNER/LEFT join spec.md §4.10
// names, over the two tables' ScanAll results.
func (e *Executor) executeJoin(left *table.Table, s Select) ([]value.Row, error) {
	right, err := e.catalog.GetTable(s.Join.RightTable)
	if err != nil {
		return nil, err
	}
	leftRows, err := left.ScanAll()
	if err != nil {
		return nil, err
	}
	rightRows, err := right.ScanAll()
	if err != nil {
		return nil, err
	}

	leftSchema, rightSchema := left.Schema(), right.Schema()
	li := leftSchema.IndexOf(s.Join.LeftColumn)
	ri := rightSchema.IndexOf(s.Join.RightColumn)
	if li < 0 || ri < 0 {
		return nil, dberr.InvalidInputf("sqlexec: join column not found (left=%q right=%q)", s.Join.LeftColumn, s.Join.RightColumn)
	}

	rightNullRow := make(value.Row, len(rightSchema.Fields))
	for i := range rightNullRow {
		rightNullRow[i] = value.NewNull()
	}

	var out []value.Row
	for _, lr := range leftRows {
		matched := false
		for _, rr := range rightRows {
			if value.Equal(lr[li], rr[ri]) {
				matched = true
				out = append(out, append(append(value.Row(nil), lr...), rr...))
			}
		}
		if !matched && s.Join.Kind == LeftJoin {
			out = append(out, append(append(value.Row(nil), lr...), rightNullRow...))
		}
	}
	return out, nil
}

// project applies GROUP BY/aggregates or a plain column projection, then
// ORDER BY and LIMIT/OFFSET.
func (e *Executor) project(schema value.Schema, rows []value.Row, s Select) (ExecutionResult, error) {
	if len(s.GroupBy) > 0 || hasAggregate(s.Items) {
		return e.projectAggregate(schema, rows, s)
	}

	columns, colIdx, err := resolveColumns(schema, s)
	if err != nil {
		return ExecutionResult{}, err
	}

	projected := make([]value.Row, len(rows))
	for i, r := range rows {
		out := make(value.Row, len(colIdx))
		for j, idx := range colIdx {
			out[j] = r[idx]
		}
		projected[i] = out
	}

	if s.OrderBy != nil {
		orderRows(projected, schema, columns, *s.OrderBy)
	}
	projected = applyLimitOffset(projected, s.Limit, s.Offset)

	return ExecutionResult{Kind: ResultSelected, Columns: columns, Rows: projected}, nil
}

func hasAggregate(items []SelectItem) bool {
	for _, it := range items {
		if it.Agg != AggNone {
			return true
		}
	}
	return false
}

func resolveColumns(schema value.Schema, s Select) ([]string, []int, error) {
	if s.Star {
		cols := make([]string, len(schema.Fields))
		idx := make([]int, len(schema.Fields))
		for i, f := range schema.Fields {
			cols[i] = f.Name
			idx[i] = i
		}
		return cols, idx, nil
	}
	cols := make([]string, len(s.Items))
	idx := make([]int, len(s.Items))
	for i, it := range s.Items {
		p := schema.IndexOf(it.Column)
		if p < 0 {
			return nil, nil, dberr.InvalidInputf("sqlexec: unknown column %q", it.Column)
		}
		cols[i] = displayName(it)
		idx[i] = p
	}
	return cols, idx, nil
}

func displayName(it SelectItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	return it.Column
}

func orderRows(rows []value.Row, schema value.Schema, columns []string, ob OrderBy) {
	pos := -1
	for i, c := range columns {
		if c == ob.Column {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := value.Compare(rows[i][pos], rows[j][pos])
		if ob.Direction == Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func applyLimitOffset(rows []value.Row, limit, offset int) []value.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
