package table

import (
	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/internal/logger"
	"github.com/omendb/omendb/pkg/rmi"
	"github.com/omendb/omendb/pkg/value"
)

// indexableTypes are the value.Type variants TableIndex accepts as a
// primary key: everything AsI64Key can losslessly map into the RMI's i64
// key domain. Float64 is deliberately excluded — bit-casting a float into
// i64 only preserves order for non-negative values, so a Float64 PK is
// rejected at Table construction instead (SPEC_FULL.md Open Question #4).
func isIndexableKeyType(t value.Type) bool {
	switch t {
	case value.Int64, value.UInt64, value.Timestamp, value.Boolean:
		return true
	default:
		return false
	}
}

// TableIndex is a generic index over any orderable, i64-representable
// column: a thin adapter from value.Value primary keys to the underlying
// Recursive Model Index's int64 key space.
//
// Grounded on the original's table_index.rs, but delegates all windowed
// search / retrain-cadence / adjacent-segment-fallback logic to pkg/rmi
// rather than reimplementing it a second time — that logic is exactly what
// pkg/rmi already provides.
type TableIndex struct {
	learned *rmi.Index
}

// NewTableIndex builds an index sized for an expected row count.
func NewTableIndex(capacity int, log *logger.Logger) *TableIndex {
	return &TableIndex{learned: rmi.New(capacity, log)}
}

// Insert records (or overwrites) key's row position.
func (ti *TableIndex) Insert(key value.Value, position int) error {
	k, err := key.AsI64Key()
	if err != nil {
		return dberr.InvalidInputf("table: index key: %v", err)
	}
	ti.learned.Insert(k, position)
	return nil
}

// Search returns the row position for key, if present.
func (ti *TableIndex) Search(key value.Value) (int, bool, error) {
	k, err := key.AsI64Key()
	if err != nil {
		return 0, false, dberr.InvalidInputf("table: index key: %v", err)
	}
	pos, ok := ti.learned.Search(k)
	return pos, ok, nil
}

// RangeQuery returns every row position whose key lies in [start, end].
func (ti *TableIndex) RangeQuery(start, end value.Value) ([]int, error) {
	s, err := start.AsI64Key()
	if err != nil {
		return nil, dberr.InvalidInputf("table: index range start: %v", err)
	}
	e, err := end.AsI64Key()
	if err != nil {
		return nil, dberr.InvalidInputf("table: index range end: %v", err)
	}
	return ti.learned.RangeSearch(s, e), nil
}

// Len reports the number of indexed keys.
func (ti *TableIndex) Len() int { return ti.learned.Len() }

// Retrain forces an immediate model rebuild.
func (ti *TableIndex) Retrain() { ti.learned.Retrain() }
