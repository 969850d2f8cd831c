// Package value implements the engine's typed value tagged union, ordered
// byte encoding, row/schema model, and row<->columnar batch conversion.
//
// Grounded on the teacher's pkg/storage/encoding.go (order-preserving
// composite-key encoding for Bytes/Int64/Uint64/Time), extended with the
// Float64/Boolean/Vector/Null variants spec.md's typed value union requires.
package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type is the closed set of value variants.
type Type uint8

const (
	Int64 Type = iota + 1
	UInt64
	Float64
	Text
	Timestamp // microseconds since epoch, stored as int64
	Boolean
	Vector // dense []float32
	Null
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case UInt64:
		return "uint64"
	case Float64:
		return "float64"
	case Text:
		return "text"
	case Timestamp:
		return "timestamp"
	case Boolean:
		return "boolean"
	case Vector:
		return "vector"
	case Null:
		return "null"
	default:
		return "unknown"
	}
}

// Value is the tagged union. Only the field matching Typ is meaningful.
type Value struct {
	Typ Type
	I64 int64
	U64 uint64
	F64 float64
	Str []byte
	B   bool
	Vec []float32
}

func NewInt64(v int64) Value      { return Value{Typ: Int64, I64: v} }
func NewUint64(v uint64) Value    { return Value{Typ: UInt64, U64: v} }
func NewFloat64(v float64) Value  { return Value{Typ: Float64, F64: v} }
func NewText(v string) Value      { return Value{Typ: Text, Str: []byte(v)} }
func NewBytes(v []byte) Value     { return Value{Typ: Text, Str: v} }
func NewTimestamp(us int64) Value { return Value{Typ: Timestamp, I64: us} }
func NewBoolean(v bool) Value     { return Value{Typ: Boolean, B: v} }
func NewVector(v []float32) Value { return Value{Typ: Vector, Vec: v} }
func NewNull() Value              { return Value{Typ: Null} }

func (v Value) IsNull() bool { return v.Typ == Null }

// IsOrderable holds for every variant except Text and Null (spec.md §3:
// "Text is orderable lexicographically in practice but excluded from
// learned-index use").
func (v Value) IsOrderable() bool {
	return v.Typ != Text && v.Typ != Null
}

// AsI64Key bit-casts an orderable scalar value into the i64 domain the RMI
// learned index operates over. Float64 is deliberately rejected: spec.md's
// Open Question notes the original bit-casts floats to i64, which only
// preserves order for non-negative floats, and resolves that a Float64 PK
// must be rejected at Table construction rather than silently bit-cast.
func (v Value) AsI64Key() (int64, error) {
	switch v.Typ {
	case Int64:
		return v.I64, nil
	case UInt64:
		return int64(v.U64), nil
	case Timestamp:
		return v.I64, nil
	case Boolean:
		if v.B {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value: type %s cannot be used as a learned-index key", v.Typ)
	}
}

// Compare implements a total order per type. Null sorts less than any
// non-null value; values of differing type compare by Type ordinal, except
// Null which always compares least regardless of the other's type.
func Compare(a, b Value) int {
	if a.Typ == Null && b.Typ == Null {
		return 0
	}
	if a.Typ == Null {
		return -1
	}
	if b.Typ == Null {
		return 1
	}
	if a.Typ != b.Typ {
		if a.Typ < b.Typ {
			return -1
		}
		return 1
	}
	switch a.Typ {
	case Int64, Timestamp:
		return cmpI64(a.I64, b.I64)
	case UInt64:
		return cmpU64(a.U64, b.U64)
	case Float64:
		return cmpF64(a.F64, b.F64)
	case Boolean:
		if a.B == b.B {
			return 0
		}
		if !a.B {
			return -1
		}
		return 1
	case Text:
		return compareBytes(a.Str, b.Str)
	case Vector:
		// Vectors have no total order; compare by length then lexically by
		// bit pattern, solely so Value satisfies comparable-for-equality use
		// (maps/sets); never used for ranging.
		if len(a.Vec) != len(b.Vec) {
			if len(a.Vec) < len(b.Vec) {
				return -1
			}
			return 1
		}
		for i := range a.Vec {
			if a.Vec[i] != b.Vec[i] {
				if a.Vec[i] < b.Vec[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	default:
		return 0
	}
}

func Equal(a, b Value) bool { return Compare(a, b) == 0 }

func cmpI64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpF64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Encode produces an order-preserving byte encoding of a single value,
// tagged with its type byte so heterogeneous values never collide.
// Extends the teacher's EncodeValues (pkg/storage/encoding.go) with
// Float64/Boolean/Vector/Null.
func Encode(v Value) []byte {
	switch v.Typ {
	case Int64, Timestamp:
		buf := make([]byte, 9)
		buf[0] = byte(v.Typ)
		u := uint64(v.I64) + (1 << 63)
		binary.BigEndian.PutUint64(buf[1:], u)
		return buf
	case UInt64:
		buf := make([]byte, 9)
		buf[0] = byte(v.Typ)
		binary.BigEndian.PutUint64(buf[1:], v.U64)
		return buf
	case Float64:
		buf := make([]byte, 9)
		buf[0] = byte(v.Typ)
		binary.BigEndian.PutUint64(buf[1:], orderPreservingFloatBits(v.F64))
		return buf
	case Boolean:
		b := byte(0)
		if v.B {
			b = 1
		}
		return []byte{byte(v.Typ), b}
	case Text:
		out := make([]byte, 0, len(v.Str)+2)
		out = append(out, byte(v.Typ))
		out = append(out, escapeBytes(v.Str)...)
		out = append(out, 0)
		return out
	case Vector:
		out := make([]byte, 1, 1+len(v.Vec)*4)
		out[0] = byte(v.Typ)
		for _, f := range v.Vec {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], math.Float32bits(f))
			out = append(out, b[:]...)
		}
		return out
	case Null:
		return []byte{byte(Null)}
	default:
		panic(fmt.Sprintf("value: unknown type %d", v.Typ))
	}
}

// orderPreservingFloatBits maps an IEEE-754 double to a uint64 whose
// unsigned ordering matches the double's numeric ordering.
func orderPreservingFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		// Negative: flip all bits.
		return ^bits
	}
	// Non-negative: flip only the sign bit.
	return bits | (1 << 63)
}

func escapeBytes(s []byte) []byte {
	escapes := 0
	for _, b := range s {
		if b == 0 || b == 0xFF || b == 0xFE {
			escapes++
		}
	}
	if escapes == 0 {
		return s
	}
	out := make([]byte, 0, len(s)+escapes)
	for _, b := range s {
		switch b {
		case 0:
			out = append(out, 0xFE, 0x00)
		case 0xFF:
			out = append(out, 0xFE, 0xFF)
		case 0xFE:
			out = append(out, 0xFE, 0xFE)
		default:
			out = append(out, b)
		}
	}
	return out
}

func unescapeBytes(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0xFE && i+1 < len(s) {
			out = append(out, s[i+1])
			i++
		} else {
			out = append(out, s[i])
		}
	}
	return out
}

// Decode decodes a single value encoded by Encode, returning the value and
// the number of bytes consumed.
func Decode(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, fmt.Errorf("value: empty buffer")
	}
	typ := Type(data[0])
	switch typ {
	case Int64, Timestamp:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("value: truncated int64")
		}
		u := binary.BigEndian.Uint64(data[1:9])
		return Value{Typ: typ, I64: int64(u - (1 << 63))}, 9, nil
	case UInt64:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("value: truncated uint64")
		}
		return Value{Typ: typ, U64: binary.BigEndian.Uint64(data[1:9])}, 9, nil
	case Float64:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("value: truncated float64")
		}
		bits := binary.BigEndian.Uint64(data[1:9])
		var orig uint64
		if bits&(1<<63) != 0 {
			orig = bits &^ (1 << 63)
		} else {
			orig = ^bits
		}
		return Value{Typ: typ, F64: math.Float64frombits(orig)}, 9, nil
	case Boolean:
		if len(data) < 2 {
			return Value{}, 0, fmt.Errorf("value: truncated boolean")
		}
		return Value{Typ: typ, B: data[1] != 0}, 2, nil
	case Text:
		end := 1
		for end < len(data) && data[end] != 0 {
			if data[end] == 0xFE && end+1 < len(data) {
				end++ // skip the escaped byte, which may itself be 0x00
			}
			end++
		}
		if end >= len(data) {
			return Value{}, 0, fmt.Errorf("value: unterminated text")
		}
		return Value{Typ: typ, Str: unescapeBytes(data[1:end])}, end + 1, nil
	case Vector:
		// Vector has no terminator; callers that embed it in a multi-value
		// stream must encode it last or length-prefix separately. Decode
		// consumes the remainder of the buffer.
		n := (len(data) - 1) / 4
		vec := make([]float32, n)
		for i := 0; i < n; i++ {
			off := 1 + i*4
			vec[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
		}
		return Value{Typ: typ, Vec: vec}, len(data), nil
	case Null:
		return Value{Typ: Null}, 1, nil
	default:
		return Value{}, 0, fmt.Errorf("value: unknown type tag %d", data[0])
	}
}
