package table

import (
	"testing"

	"github.com/omendb/omendb/pkg/value"
)

func TestTableIndexInsertAndSearch(t *testing.T) {
	idx := NewTableIndex(100, nil)

	if err := idx.Insert(value.NewInt64(100), 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Insert(value.NewInt64(200), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	idx.Retrain()

	pos, ok, err := idx.Search(value.NewInt64(200))
	if err != nil || !ok || pos != 1 {
		t.Fatalf("Search(200) = %d, %v, %v; want 1, true, nil", pos, ok, err)
	}

	_, ok, err = idx.Search(value.NewInt64(999))
	if err != nil || ok {
		t.Fatalf("Search(999) = _, %v, %v; want false, nil", ok, err)
	}
}

func TestTableIndexWithTimestampKeys(t *testing.T) {
	idx := NewTableIndex(10, nil)
	idx.Insert(value.NewTimestamp(1_000_000), 0)
	idx.Insert(value.NewTimestamp(2_000_000), 1)
	idx.Retrain()

	pos, ok, _ := idx.Search(value.NewTimestamp(2_000_000))
	if !ok || pos != 1 {
		t.Fatalf("Search = %d, %v; want 1, true", pos, ok)
	}
}

func TestTableIndexRangeQuery(t *testing.T) {
	idx := NewTableIndex(10, nil)
	for i := 0; i < 10; i++ {
		idx.Insert(value.NewInt64(int64(i*10)), i)
	}
	idx.Retrain()

	positions, err := idx.RangeQuery(value.NewInt64(20), value.NewInt64(50))
	if err != nil {
		t.Fatalf("RangeQuery: %v", err)
	}
	if len(positions) != 4 {
		t.Fatalf("RangeQuery(20,50) returned %d positions, want 4", len(positions))
	}
}

func TestTableIndexRejectsNonIndexableKey(t *testing.T) {
	idx := NewTableIndex(10, nil)
	if err := idx.Insert(value.NewText("nope"), 0); err == nil {
		t.Error("Insert with a Text key should fail")
	}
}

func TestIsIndexableKeyType(t *testing.T) {
	cases := []struct {
		typ value.Type
		ok  bool
	}{
		{value.Int64, true},
		{value.UInt64, true},
		{value.Timestamp, true},
		{value.Boolean, true},
		{value.Float64, false},
		{value.Text, false},
		{value.Vector, false},
		{value.Null, false},
	}
	for _, c := range cases {
		if got := isIndexableKeyType(c.typ); got != c.ok {
			t.Errorf("isIndexableKeyType(%s) = %v, want %v", c.typ, got, c.ok)
		}
	}
}
