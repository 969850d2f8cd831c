package table

import (
	"path/filepath"
	"testing"

	"github.com/omendb/omendb/pkg/value"
)

func usersSchema() value.Schema {
	return value.NewSchema(
		value.Field{Name: "id", Type: value.Int64},
		value.Field{Name: "name", Type: value.Text},
	)
}

func TestTableStorageInsertAndGet(t *testing.T) {
	s, err := NewTableStorage(usersSchema(), t.TempDir())
	if err != nil {
		t.Fatalf("NewTableStorage: %v", err)
	}

	row := value.Row{value.NewInt64(1), value.NewText("alice")}
	if err := s.Insert(row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if s.RowCount() != 1 {
		t.Fatalf("RowCount = %d, want 1", s.RowCount())
	}

	got, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got[0].I64 != 1 {
		t.Errorf("Get(0)[0] = %v, want Int64(1)", got[0])
	}
}

func TestTableStorageFlushesAtBatchSize(t *testing.T) {
	schema := value.NewSchema(value.Field{Name: "id", Type: value.Int64})
	s, err := NewTableStorage(schema, t.TempDir())
	if err != nil {
		t.Fatalf("NewTableStorage: %v", err)
	}
	s.batchSize = 5

	for i := int64(0); i < 12; i++ {
		if err := s.Insert(value.Row{value.NewInt64(i)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	if s.RowCount() != 12 {
		t.Fatalf("RowCount = %d, want 12", s.RowCount())
	}
	if len(s.batches) != 2 {
		t.Fatalf("expected 2 flushed batches of 5 rows each, got %d", len(s.batches))
	}
	if len(s.pending) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(s.pending))
	}
}

func TestTableStorageScanAll(t *testing.T) {
	schema := value.NewSchema(value.Field{Name: "id", Type: value.Int64})
	s, err := NewTableStorage(schema, t.TempDir())
	if err != nil {
		t.Fatalf("NewTableStorage: %v", err)
	}
	s.batchSize = 3

	for i := int64(0); i < 7; i++ {
		s.Insert(value.Row{value.NewInt64(i)})
	}

	rows := s.ScanAll()
	if len(rows) != 7 {
		t.Fatalf("ScanAll returned %d rows, want 7", len(rows))
	}
	for i, r := range rows {
		if r[0].I64 != int64(i) {
			t.Errorf("row %d = %v, want Int64(%d)", i, r[0], i)
		}
	}
}

func TestTableStoragePersistAndReload(t *testing.T) {
	dir := t.TempDir()
	schema := usersSchema()

	s, err := NewTableStorage(schema, dir)
	if err != nil {
		t.Fatalf("NewTableStorage: %v", err)
	}
	for i := int64(0); i < 5; i++ {
		s.Insert(value.Row{value.NewInt64(i), value.NewText("user")})
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded, err := LoadTableStorage(schema, dir)
	if err != nil {
		t.Fatalf("LoadTableStorage: %v", err)
	}
	if reloaded.RowCount() != 5 {
		t.Fatalf("reloaded RowCount = %d, want 5", reloaded.RowCount())
	}
	row, err := reloaded.Get(3)
	if err != nil {
		t.Fatalf("Get(3): %v", err)
	}
	if row[0].I64 != 3 || string(row[1].Str) != "user" {
		t.Errorf("Get(3) = %v, want [Int64(3), Text(user)]", row)
	}
}

func TestTableStorageGetOutOfBounds(t *testing.T) {
	s, _ := NewTableStorage(usersSchema(), t.TempDir())
	if _, err := s.Get(0); err == nil {
		t.Error("Get on empty storage should error")
	}
}

func TestEncodeDecodeRowValuesRoundTrip(t *testing.T) {
	row := value.Row{value.NewInt64(42), value.NewText("hello"), value.NewBoolean(true)}
	encoded := encodeRowValues(row)

	decoded, err := decodeRowValues(encoded, len(row))
	if err != nil {
		t.Fatalf("decodeRowValues: %v", err)
	}
	for i := range row {
		if value.Compare(row[i], decoded[i]) != 0 {
			t.Errorf("column %d = %v, want %v", i, decoded[i], row[i])
		}
	}
}

func TestLoadTableStorageMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadTableStorage(usersSchema(), filepath.Join(dir, "nonexistent"))
	if err != nil {
		t.Fatalf("LoadTableStorage on missing dir: %v", err)
	}
	if s.RowCount() != 0 {
		t.Errorf("RowCount = %d, want 0", s.RowCount())
	}
}
