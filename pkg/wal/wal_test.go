package wal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestEntryEncodeDecode(t *testing.T) {
	e := &Entry{
		Seq:       42,
		TxnID:     7,
		Op:        OpInsert,
		Key:       []byte("k1"),
		Value:     []byte("v1"),
		Timestamp: time.Now(),
	}
	data := e.Encode()
	if len(data) != e.Size() {
		t.Fatalf("Size() = %d, Encode() produced %d bytes", e.Size(), len(data))
	}

	decoded, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if decoded.Seq != e.Seq || decoded.TxnID != e.TxnID || decoded.Op != e.Op {
		t.Errorf("seq/txn/op mismatch: got %+v, want %+v", decoded, e)
	}
	if string(decoded.Key) != string(e.Key) || string(decoded.Value) != string(e.Value) {
		t.Errorf("key/value mismatch: got %q/%q, want %q/%q", decoded.Key, decoded.Value, e.Key, e.Value)
	}
}

func TestEntryEncodeDecodeEmptyPayload(t *testing.T) {
	e := &Entry{Seq: 10, Op: OpCheckpoint, Timestamp: time.Now()}
	data := e.Encode()
	decoded, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if len(decoded.Key) != 0 || len(decoded.Value) != 0 {
		t.Errorf("expected empty key/value, got %q/%q", decoded.Key, decoded.Value)
	}
}

func TestDecodeEntryRejectsBadCRC(t *testing.T) {
	e := &Entry{Seq: 1, Op: OpInsert, Key: []byte("k"), Value: []byte("v"), Timestamp: time.Now()}
	data := e.Encode()
	data[len(data)-1] ^= 0xFF // flip a CRC byte

	if _, err := DecodeEntry(data); err == nil {
		t.Fatal("expected crc mismatch error")
	}
}

func newTestWAL(t *testing.T) *WAL {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWALWriteAndReadBack(t *testing.T) {
	w := newTestWAL(t)

	for i := 0; i < 5; i++ {
		e := &Entry{
			Seq:       w.NextSeq(),
			Op:        OpInsert,
			Key:       []byte("key"),
			Value:     []byte("value"),
			Timestamp: time.Now(),
		}
		if err := w.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Fsync(); err != nil {
		t.Fatalf("Fsync: %v", err)
	}

	files, err := w.segmentFiles()
	if err != nil {
		t.Fatalf("segmentFiles: %v", err)
	}
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
}

func TestSeqGenerationIsMonotonic(t *testing.T) {
	w := newTestWAL(t)

	var prev uint64
	for i := 0; i < 100; i++ {
		seq := w.NextSeq()
		if seq <= prev {
			t.Fatalf("seq not monotonically increasing: prev=%d, current=%d", prev, seq)
		}
		prev = seq
	}
}

func TestWALReopenPreservesSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.wal")
	w, err := Open(path, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var lastSeq uint64
	for i := 0; i < 3; i++ {
		lastSeq = w.NextSeq()
		w.Write(&Entry{Seq: lastSeq, Op: OpInsert, Key: []byte("k"), Value: []byte("v"), Timestamp: time.Now()})
	}
	w.Fsync()
	w.Close()

	w2, err := Open(path, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	next := w2.NextSeq()
	if next != lastSeq+1 {
		t.Errorf("seq after reopen = %d, want %d", next, lastSeq+1)
	}
}

func TestWALRotatesOnSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rot.wal")
	w, err := Open(path, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	// Force an immediate rotation on the next write regardless of size.
	w.fileSize = MaxLogFileSize

	big := make([]byte, 1024)
	e := &Entry{Seq: w.NextSeq(), Op: OpInsert, Key: []byte("k"), Value: big, Timestamp: time.Now()}
	if err := w.Write(e); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rotated, err := w.rotatedFiles()
	if err != nil {
		t.Fatalf("rotatedFiles: %v", err)
	}
	if len(rotated) != 1 {
		t.Fatalf("got %d rotated files, want 1", len(rotated))
	}
}

func TestWALCloseRejectsFurtherWrites(t *testing.T) {
	w := newTestWAL(t)
	w.Close()

	err := w.Write(&Entry{Seq: 1, Op: OpInsert, Timestamp: time.Now()})
	if err == nil {
		t.Fatal("expected error writing to closed WAL")
	}
}

func TestLogPageWriteRecordsEntry(t *testing.T) {
	w := newTestWAL(t)

	data := []byte("page body")
	if err := w.LogPageWrite(5, data); err != nil {
		t.Fatalf("LogPageWrite: %v", err)
	}
	w.Fsync()

	files, _ := w.segmentFiles()
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != OpPageWrite {
		t.Fatalf("expected single OpPageWrite entry, got %+v", entries)
	}
	if string(entries[0].Value) != string(data) {
		t.Errorf("page data mismatch: got %q, want %q", entries[0].Value, data)
	}
}
