package sqlexec

import (
	"testing"

	"github.com/omendb/omendb/pkg/table"
	"github.com/omendb/omendb/pkg/value"
)

func newTestExecutor(t *testing.T) (*Executor, *table.Catalog) {
	t.Helper()
	cat, err := table.NewCatalog(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return New(cat, nil, nil), cat
}

func createUsers(t *testing.T, e *Executor) {
	t.Helper()
	stmt := CreateTable{
		Table: "users",
		Columns: []ColumnDef{
			{Name: "id", Type: value.Int64, PrimaryKey: true},
			{Name: "name", Type: value.Text},
			{Name: "age", Type: value.Int64},
		},
	}
	if _, err := e.Execute(stmt); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
}

func insertUsers(t *testing.T, e *Executor, rows ...value.Row) {
	t.Helper()
	if _, err := e.Execute(Insert{Table: "users", Rows: rows}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestCreateAndInsert(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)

	res, err := e.Execute(Insert{Table: "users", Rows: []value.Row{
		{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)},
		{value.NewInt64(2), value.NewText("bob"), value.NewInt64(25)},
	}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Kind != ResultInserted || res.Count != 2 {
		t.Errorf("Insert result = %+v, want Inserted{2}", res)
	}
}

func TestSelectPointQuery(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e,
		value.Row{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)},
		value.Row{value.NewInt64(2), value.NewText("bob"), value.NewInt64(25)},
	)

	res, err := e.Execute(Select{
		Table: "users",
		Star:  true,
		Where: Compare{Op: CmpEq, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(1)}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][1].Str == nil || string(res.Rows[0][1].Str) != "alice" {
		t.Fatalf("Select(id=1) = %+v, want [alice row]", res.Rows)
	}
}

func TestSelectRangeQuery(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	for i := int64(1); i <= 10; i++ {
		insertUsers(t, e, value.Row{value.NewInt64(i), value.NewText("u"), value.NewInt64(i)})
	}

	res, err := e.Execute(Select{
		Table: "users",
		Star:  true,
		Where: Logical{
			Op:   LogicalAnd,
			Left: Compare{Op: CmpGtEq, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(3)}},
			Right: Compare{Op: CmpLtEq, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(6)}},
		},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Rows) != 4 {
		t.Fatalf("Select(3<=id<=6) returned %d rows, want 4", len(res.Rows))
	}
}

func TestSelectFullScanWithResidualFilter(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e,
		value.Row{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)},
		value.Row{value.NewInt64(2), value.NewText("bob"), value.NewInt64(25)},
	)

	res, err := e.Execute(Select{
		Table: "users",
		Star:  true,
		Where: Compare{Op: CmpGt, Left: ColumnRef{"age"}, Right: Literal{value.NewInt64(26)}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Rows) != 1 || string(res.Rows[0][1].Str) != "alice" {
		t.Fatalf("Select(age>26) = %+v, want [alice row]", res.Rows)
	}
}

func TestSelectOrderByLimitOffset(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	for i := int64(1); i <= 5; i++ {
		insertUsers(t, e, value.Row{value.NewInt64(i), value.NewText("u"), value.NewInt64(50 - i)})
	}

	res, err := e.Execute(Select{
		Table:   "users",
		Star:    true,
		OrderBy: &OrderBy{Column: "age", Direction: Asc},
		Limit:   2,
		Offset:  1,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Rows[0][0].I64 != 4 || res.Rows[1][0].I64 != 3 {
		t.Errorf("Rows = %+v, want ids [4,3] (ascending age, offset 1)", res.Rows)
	}
}

func TestSelectAggregateCount(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	for i := int64(1); i <= 4; i++ {
		insertUsers(t, e, value.Row{value.NewInt64(i), value.NewText("u"), value.NewInt64(20)})
	}

	res, err := e.Execute(Select{
		Table: "users",
		Items: []SelectItem{{Agg: AggCount}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0].I64 != 4 {
		t.Fatalf("COUNT(*) = %+v, want [4]", res.Rows)
	}
}

func TestSelectGroupByAggregate(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e,
		value.Row{value.NewInt64(1), value.NewText("a"), value.NewInt64(20)},
		value.Row{value.NewInt64(2), value.NewText("a"), value.NewInt64(30)},
		value.Row{value.NewInt64(3), value.NewText("b"), value.NewInt64(40)},
	)

	res, err := e.Execute(Select{
		Table:   "users",
		GroupBy: []string{"name"},
		Items:   []SelectItem{{Column: "age", Agg: AggSum}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(res.Rows))
	}
	sums := map[string]float64{}
	for _, r := range res.Rows {
		sums[string(r[0].Str)] = r[1].F64
	}
	if sums["a"] != 50 || sums["b"] != 40 {
		t.Errorf("sums = %+v, want a=50 b=40", sums)
	}
}

func TestUpdateRestrictedToPKEquality(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e, value.Row{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)})

	res, err := e.Execute(Update{
		Table:  "users",
		Sets:   map[string]value.Value{"age": value.NewInt64(31)},
		PKExpr: Compare{Op: CmpEq, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(1)}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("Update count = %d, want 1", res.Count)
	}

	_, err = e.Execute(Update{
		Table:  "users",
		Sets:   map[string]value.Value{"age": value.NewInt64(99)},
		PKExpr: Compare{Op: CmpGt, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(0)}},
	})
	if err == nil {
		t.Error("Update with a non-equality WHERE should be rejected")
	}
}

func TestUpdateRejectsPrimaryKeyMutation(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e, value.Row{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)})

	_, err := e.Execute(Update{
		Table:  "users",
		Sets:   map[string]value.Value{"id": value.NewInt64(2)},
		PKExpr: Compare{Op: CmpEq, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(1)}},
	})
	if err == nil {
		t.Error("Update should reject mutating the primary key column")
	}
}

func TestDelete(t *testing.T) {
	e, _ := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e, value.Row{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)})

	res, err := e.Execute(Delete{
		Table:  "users",
		PKExpr: Compare{Op: CmpEq, Left: ColumnRef{"id"}, Right: Literal{value.NewInt64(1)}},
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("Delete count = %d, want 1", res.Count)
	}

	sel, err := e.Execute(Select{Table: "users", Star: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Rows) != 0 {
		t.Errorf("rows after delete = %+v, want none", sel.Rows)
	}
}

func TestJoinInnerAndLeft(t *testing.T) {
	e, cat := newTestExecutor(t)
	createUsers(t, e)
	insertUsers(t, e,
		value.Row{value.NewInt64(1), value.NewText("alice"), value.NewInt64(30)},
		value.Row{value.NewInt64(2), value.NewText("bob"), value.NewInt64(25)},
	)

	ordersSchema := value.NewSchema(
		value.Field{Name: "order_id", Type: value.Int64},
		value.Field{Name: "user_id", Type: value.Int64},
	)
	if err := cat.CreateTable("orders", ordersSchema, "order_id"); err != nil {
		t.Fatalf("CreateTable(orders): %v", err)
	}
	cat.InsertRow("orders", value.Row{value.NewInt64(100), value.NewInt64(1)})

	innerRes, err := e.Execute(Select{
		Table: "users",
		Star:  true,
		Join:  &Join{Kind: InnerJoin, RightTable: "orders", LeftColumn: "id", RightColumn: "user_id"},
	})
	if err != nil {
		t.Fatalf("Select(inner join): %v", err)
	}
	if len(innerRes.Rows) != 1 {
		t.Fatalf("INNER JOIN rows = %d, want 1", len(innerRes.Rows))
	}

	leftRes, err := e.Execute(Select{
		Table: "users",
		Star:  true,
		Join:  &Join{Kind: LeftJoin, RightTable: "orders", LeftColumn: "id", RightColumn: "user_id"},
	})
	if err != nil {
		t.Fatalf("Select(left join): %v", err)
	}
	if len(leftRes.Rows) != 2 {
		t.Fatalf("LEFT JOIN rows = %d, want 2 (bob unmatched but present)", len(leftRes.Rows))
	}
}

func TestVectorOperatorL2Distance(t *testing.T) {
	schema := value.NewSchema(value.Field{Name: "v", Type: value.Vector})
	row := value.Row{value.NewVector([]float32{0, 0})}

	expr := VectorOp{
		Left:  ColumnRef{"v"},
		Right: Literal{value.NewVector([]float32{3, 4})},
	}
	result, err := expr.eval(row, schema)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if result.Typ != value.Float64 || result.F64 != 5 {
		t.Errorf("L2 distance = %+v, want 5.0", result)
	}
}

func TestExecuteSQLRejectsOversizedQuery(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.WithConfig(QueryConfig{Timeout: e.config.Timeout, MaxRows: e.config.MaxRows, MaxQueryBytes: 4})

	_, err := e.ExecuteSQL("SELECT * FROM users", Select{Table: "users", Star: true})
	if err == nil {
		t.Error("ExecuteSQL should reject input exceeding MaxQueryBytes")
	}
}

func TestBeginCommitWithoutManagerFails(t *testing.T) {
	e, _ := newTestExecutor(t)
	if _, err := e.Execute(Begin{}); err == nil {
		t.Error("BEGIN without a configured TransactionManager should fail")
	}
}
