package value

// Column is a typed columnar slice: len(Values) == len(Nulls) and
// Nulls[i]==true means Values[i] carries no meaningful payload.
type Column struct {
	Type   Type
	Values []Value
	Nulls  []bool
}

// Batch is a columnar row group: one Column per schema field, all of equal
// length (the batch's row count).
type Batch struct {
	Schema  Schema
	Columns []Column
	NumRows int
}

// NewBatch allocates an empty batch for the given schema.
func NewBatch(s Schema) *Batch {
	cols := make([]Column, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = Column{Type: f.Type}
	}
	return &Batch{Schema: s, Columns: cols}
}

// BatchFromRows converts a row list into a columnar batch. Conversion is
// lossless: RowsFromBatch(BatchFromRows(rows)) == rows (spec.md §3 "Row &
// schema" identity).
func BatchFromRows(s Schema, rows []Row) (*Batch, error) {
	b := NewBatch(s)
	for _, r := range rows {
		if err := r.Validate(s); err != nil {
			return nil, err
		}
		b.Append(r)
	}
	return b, nil
}

// Append adds one row to the batch. Caller must have validated the row.
func (b *Batch) Append(r Row) {
	for i, v := range r {
		b.Columns[i].Values = append(b.Columns[i].Values, v)
		b.Columns[i].Nulls = append(b.Columns[i].Nulls, v.IsNull())
	}
	b.NumRows++
}

// Row reconstructs row i as a positional Row.
func (b *Batch) Row(i int) Row {
	r := make(Row, len(b.Columns))
	for c, col := range b.Columns {
		if col.Nulls[i] {
			r[c] = NewNull()
		} else {
			r[c] = col.Values[i]
		}
	}
	return r
}

// RowsFromBatch reconstructs the full row list from a batch.
func RowsFromBatch(b *Batch) []Row {
	rows := make([]Row, b.NumRows)
	for i := 0; i < b.NumRows; i++ {
		rows[i] = b.Row(i)
	}
	return rows
}
