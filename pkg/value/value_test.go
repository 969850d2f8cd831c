package value

import "testing"

func TestCompareCrossType(t *testing.T) {
	if Compare(NewNull(), NewInt64(0)) >= 0 {
		t.Fatal("null must sort before any non-null value")
	}
	if Compare(NewInt64(1), NewNull()) <= 0 {
		t.Fatal("non-null must sort after null")
	}
	if Compare(NewNull(), NewNull()) != 0 {
		t.Fatal("null must equal null")
	}
}

func TestCompareOrdering(t *testing.T) {
	cases := []struct {
		a, b Value
		want int
	}{
		{NewInt64(1), NewInt64(2), -1},
		{NewInt64(2), NewInt64(1), 1},
		{NewInt64(5), NewInt64(5), 0},
		{NewUint64(1), NewUint64(2), -1},
		{NewFloat64(-1.5), NewFloat64(1.5), -1},
		{NewBoolean(false), NewBoolean(true), -1},
		{NewText("abc"), NewText("abd"), -1},
		{NewText("abc"), NewText("abc"), 0},
		{NewText("ab"), NewText("abc"), -1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(NewInt64(7), NewInt64(7)) {
		t.Fatal("expected equal int64s")
	}
	if Equal(NewInt64(7), NewInt64(8)) {
		t.Fatal("expected unequal int64s")
	}
}

func TestAsI64KeyRejectsFloat(t *testing.T) {
	if _, err := NewFloat64(1.5).AsI64Key(); err == nil {
		t.Fatal("expected Float64 to be rejected as a learned-index key")
	}
}

func TestAsI64KeyAcceptsOrderableScalars(t *testing.T) {
	cases := []Value{NewInt64(-5), NewUint64(5), NewTimestamp(123), NewBoolean(true), NewBoolean(false)}
	for _, v := range cases {
		if _, err := v.AsI64Key(); err != nil {
			t.Errorf("AsI64Key(%v) returned error: %v", v, err)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		NewInt64(-42),
		NewInt64(0),
		NewInt64(42),
		NewUint64(0),
		NewUint64(1<<63 + 7),
		NewFloat64(-3.14),
		NewFloat64(0),
		NewFloat64(2.71828),
		NewText("hello"),
		NewText(""),
		NewTimestamp(1690000000000000),
		NewBoolean(true),
		NewBoolean(false),
		NewNull(),
	}
	for _, v := range cases {
		enc := Encode(v)
		got, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%v) error: %v", v, err)
		}
		if n != len(enc) {
			t.Errorf("Decode consumed %d bytes, encoding was %d bytes", n, len(enc))
		}
		if !Equal(got, v) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, v)
		}
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	v := NewVector([]float32{1.5, -2.25, 0, 3.75})
	enc := Encode(v)
	got, n, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if n != len(enc) {
		t.Errorf("consumed %d of %d bytes", n, len(enc))
	}
	if !Equal(got, v) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestEncodeTextEscapesReservedBytes(t *testing.T) {
	v := NewBytes([]byte{0x00, 'a', 0xFF, 'b'})
	enc := Encode(v)
	got, _, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !Equal(got, v) {
		t.Errorf("escaped round trip mismatch: got %+v, want %+v", got, v)
	}
}

// The escape lead-in byte itself (0xFE) must also be escaped on encode, or
// a literal 0xFE in the input is silently swallowed by unescapeBytes on
// decode, which always treats 0xFE as an escape marker.
func TestEncodeTextEscapesEscapeByteItself(t *testing.T) {
	cases := [][]byte{
		{0xFE, 0x41},
		{0x41, 0xFE},
		{0xFE, 0xFE},
		{0xFE},
		{0x00, 0xFE, 0xFF, 0xFE, 0x00},
	}
	for _, c := range cases {
		v := NewBytes(c)
		enc := Encode(v)
		got, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%v) error: %v", c, err)
		}
		if n != len(enc) {
			t.Errorf("Decode(%v) consumed %d of %d bytes", c, n, len(enc))
		}
		if !Equal(got, v) {
			t.Errorf("round trip mismatch for %v: got %+v, want %+v", c, got, v)
		}
	}
}

func TestEncodePreservesIntOrdering(t *testing.T) {
	vals := []int64{-100, -1, 0, 1, 100}
	for i := 0; i < len(vals)-1; i++ {
		lo := Encode(NewInt64(vals[i]))
		hi := Encode(NewInt64(vals[i+1]))
		if compareBytes(lo, hi) >= 0 {
			t.Errorf("Encode(%d) must sort before Encode(%d) byte-lexicographically", vals[i], vals[i+1])
		}
	}
}

func TestEncodePreservesFloatOrdering(t *testing.T) {
	vals := []float64{-100.5, -1.1, 0, 1.1, 100.5}
	for i := 0; i < len(vals)-1; i++ {
		lo := Encode(NewFloat64(vals[i]))
		hi := Encode(NewFloat64(vals[i+1]))
		if compareBytes(lo, hi) >= 0 {
			t.Errorf("Encode(%v) must sort before Encode(%v) byte-lexicographically", vals[i], vals[i+1])
		}
	}
}

func TestIsOrderable(t *testing.T) {
	if !NewInt64(1).IsOrderable() {
		t.Fatal("int64 must be orderable")
	}
	if NewText("x").IsOrderable() {
		t.Fatal("text must not be orderable for learned-index purposes")
	}
	if NewNull().IsOrderable() {
		t.Fatal("null must not be orderable")
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
}
