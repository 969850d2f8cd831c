package value

import "fmt"

// Field is a named, typed, nullable schema member.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field
}

func NewSchema(fields ...Field) Schema {
	return Schema{Fields: fields}
}

func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Field(name string) (Field, bool) {
	i := s.IndexOf(name)
	if i < 0 {
		return Field{}, false
	}
	return s.Fields[i], true
}

// WithMVCCColumns returns the internal schema: user schema followed by
// {version:UInt64, txn_id:UInt64, deleted:Boolean} (spec.md §3
// "MVCC-augmented row").
func (s Schema) WithMVCCColumns() Schema {
	out := make([]Field, 0, len(s.Fields)+3)
	out = append(out, s.Fields...)
	out = append(out,
		Field{Name: "__version", Type: UInt64, Nullable: false},
		Field{Name: "__txn_id", Type: UInt64, Nullable: false},
		Field{Name: "__deleted", Type: Boolean, Nullable: false},
	)
	return Schema{Fields: out}
}

// StripMVCCColumns returns the schema with the trailing three MVCC columns
// removed, and panics if the schema doesn't look internally augmented
// (defensive only against programmer error, never against user input).
func (s Schema) StripMVCCColumns() Schema {
	n := len(s.Fields)
	if n < 3 {
		panic("value: schema too short to strip MVCC columns")
	}
	return Schema{Fields: append([]Field{}, s.Fields[:n-3]...)}
}

// Row is a positional vector of values matching a Schema by arity and type.
type Row []Value

// Validate checks that r matches schema s by arity, type, and nullability.
func (r Row) Validate(s Schema) error {
	if len(r) != len(s.Fields) {
		return fmt.Errorf("value: row has %d columns, schema has %d", len(r), len(s.Fields))
	}
	for i, f := range s.Fields {
		v := r[i]
		if v.IsNull() {
			if !f.Nullable {
				return fmt.Errorf("value: column %q is not nullable", f.Name)
			}
			continue
		}
		if v.Typ != f.Type {
			return fmt.Errorf("value: column %q expects %s, got %s", f.Name, f.Type, v.Typ)
		}
	}
	return nil
}

// WithMVCCColumns appends {version, txn_id, deleted} to a user row to
// produce the internally-stored row.
func (r Row) WithMVCCColumns(version, txnID uint64, deleted bool) Row {
	out := make(Row, 0, len(r)+3)
	out = append(out, r...)
	out = append(out, NewUint64(version), NewUint64(txnID), NewBoolean(deleted))
	return out
}

// StripMVCCColumns returns the user-facing row with the trailing three
// MVCC columns removed.
func (r Row) StripMVCCColumns() Row {
	n := len(r)
	if n < 3 {
		panic("value: row too short to strip MVCC columns")
	}
	return append(Row{}, r[:n-3]...)
}

// MVCCVersion reads the version column of an internally-stored row.
func (r Row) MVCCVersion() uint64 { return r[len(r)-3].U64 }

// MVCCTxnID reads the txn_id column of an internally-stored row.
func (r Row) MVCCTxnID() uint64 { return r[len(r)-2].U64 }

// MVCCDeleted reads the deleted flag of an internally-stored row.
func (r Row) MVCCDeleted() bool { return r[len(r)-1].B }
