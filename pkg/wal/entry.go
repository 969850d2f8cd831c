// Package wal implements the write-ahead log: length-prefixed framed
// entries, CRC-verified, with rotation, checkpointing, and crash recovery.
//
// Grounded on the teacher's pkg/wal package (fixed-header entries, CRC32
// trailer, numeric-index rotation, ticker-driven checkpointer), generalized
// to spec.md §4.3/§6's framing: length-prefixed (not fixed-header-first),
// an ISO-8601 timestamp, and 8 operation kinds (the teacher has 4) —
// Insert/Update/Delete/BeginTxn/CommitTxn/RollbackTxn/Checkpoint/PageWrite.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/omendb/omendb/internal/dberr"
)

// OpType is one of the eleven logged operation kinds: the eight page-level
// kinds of spec.md §4.3 plus the table-level CreateTable/DropTable/InsertRow.
type OpType byte

const (
	OpInsert OpType = iota + 1
	OpUpdate
	OpDelete
	OpBeginTxn
	OpCommitTxn
	OpRollbackTxn
	OpCheckpoint
	OpPageWrite

	// The catalog-level WAL (pkg/table.Catalog) logs these three kinds
	// through the same framed WAL rather than inventing a second format;
	// spec.md §4.7 names them as a WAL distinct from the page-level one the
	// B+Tree/PageManager path uses. Key/Value carry each op's payload:
	// OpCreateTable: Key=table name, Value=JSON{pk, schema}.
	// OpDropTable: Key=table name, Value=nil.
	// OpInsertRow: Key=table name, Value=encoded row values.
	OpCreateTable
	OpDropTable
	OpInsertRow
)

func (o OpType) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpBeginTxn:
		return "BEGIN_TXN"
	case OpCommitTxn:
		return "COMMIT_TXN"
	case OpRollbackTxn:
		return "ROLLBACK_TXN"
	case OpCheckpoint:
		return "CHECKPOINT"
	case OpPageWrite:
		return "PAGE_WRITE"
	case OpCreateTable:
		return "CREATE_TABLE"
	case OpDropTable:
		return "DROP_TABLE"
	case OpInsertRow:
		return "INSERT_ROW"
	default:
		return "UNKNOWN"
	}
}

// MaxEntrySize is the sanity bound spec.md §6 names: entries claiming to be
// larger than this are treated as corruption, not trusted.
const MaxEntrySize = 10 * 1024 * 1024

// Entry is a single WAL record. Key/Value carry the Insert/Update/Delete
// payload; for PageWrite, Key holds the 8-byte big-endian PageID and Value
// holds the page's raw bytes (reusing the same two payload fields rather
// than adding PageWrite-only fields, matching spec.md's framing of every
// op as "sequence + operation payload + timestamp + checksum").
type Entry struct {
	Seq       uint64
	TxnID     uint64
	Op        OpType
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Encode serializes the entry as: len:u32 LE | payload | crc32:u32 LE,
// where len = len(payload) + 4 and payload = seq(8) ++ txn_id(8) ++ op(1)
// ++ ts_len(2) ++ ts(RFC3339Nano, ISO-8601) ++ key_len(4) ++ key ++
// val_len(4) ++ val. CRC32 covers the payload (sequence, op, timestamp,
// and the operation payload) per spec.md §4.3's definition.
func (e *Entry) Encode() []byte {
	ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
	payloadLen := 8 + 8 + 1 + 2 + len(ts) + 4 + len(e.Key) + 4 + len(e.Value)
	total := 4 + payloadLen + 4
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(payloadLen+4))

	p := buf[4:]
	binary.LittleEndian.PutUint64(p[0:8], e.Seq)
	binary.LittleEndian.PutUint64(p[8:16], e.TxnID)
	p[16] = byte(e.Op)
	binary.LittleEndian.PutUint16(p[17:19], uint16(len(ts)))
	off := 19
	copy(p[off:], ts)
	off += len(ts)
	binary.LittleEndian.PutUint32(p[off:off+4], uint32(len(e.Key)))
	off += 4
	copy(p[off:], e.Key)
	off += len(e.Key)
	binary.LittleEndian.PutUint32(p[off:off+4], uint32(len(e.Value)))
	off += 4
	copy(p[off:], e.Value)
	off += len(e.Value)

	crc := crc32.ChecksumIEEE(p[:off])
	binary.LittleEndian.PutUint32(buf[4+off:4+off+4], crc)
	return buf
}

// Size returns the encoded size of the entry in bytes.
func (e *Entry) Size() int {
	ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
	return 4 + 8 + 8 + 1 + 2 + len(ts) + 4 + len(e.Key) + 4 + len(e.Value) + 4
}

// DecodeEntry decodes one framed entry starting at data[0]. It expects the
// u32 length prefix to already be consistent with len(data).
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < 4 {
		return nil, dberr.Corruptionf("wal: truncated length prefix")
	}
	frameLen := binary.LittleEndian.Uint32(data[0:4])
	if frameLen > MaxEntrySize {
		return nil, dberr.Corruptionf("wal: entry frame length %d exceeds sanity bound", frameLen)
	}
	if uint32(len(data)-4) < frameLen {
		return nil, dberr.Corruptionf("wal: truncated entry, want %d have %d", frameLen, len(data)-4)
	}
	payload := data[4 : 4+int(frameLen)]
	if len(payload) < 4 {
		return nil, dberr.Corruptionf("wal: entry too short for crc")
	}
	body := payload[:len(payload)-4]
	storedCRC := binary.LittleEndian.Uint32(payload[len(payload)-4:])
	if crc32.ChecksumIEEE(body) != storedCRC {
		return nil, dberr.Corruptionf("wal: crc mismatch")
	}

	if len(body) < 19 {
		return nil, dberr.Corruptionf("wal: truncated header")
	}
	e := &Entry{
		Seq:   binary.LittleEndian.Uint64(body[0:8]),
		TxnID: binary.LittleEndian.Uint64(body[8:16]),
		Op:    OpType(body[16]),
	}
	tsLen := binary.LittleEndian.Uint16(body[17:19])
	off := 19
	if len(body) < off+int(tsLen) {
		return nil, dberr.Corruptionf("wal: truncated timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, string(body[off:off+int(tsLen)]))
	if err != nil {
		return nil, dberr.Corruptionf("wal: bad timestamp: %v", err)
	}
	e.Timestamp = ts
	off += int(tsLen)

	if len(body) < off+4 {
		return nil, dberr.Corruptionf("wal: truncated key length")
	}
	keyLen := binary.LittleEndian.Uint32(body[off : off+4])
	off += 4
	if len(body) < off+int(keyLen) {
		return nil, dberr.Corruptionf("wal: truncated key")
	}
	if keyLen > 0 {
		e.Key = append([]byte(nil), body[off:off+int(keyLen)]...)
	}
	off += int(keyLen)

	if len(body) < off+4 {
		return nil, dberr.Corruptionf("wal: truncated value length")
	}
	valLen := binary.LittleEndian.Uint32(body[off : off+4])
	off += 4
	if len(body) < off+int(valLen) {
		return nil, dberr.Corruptionf("wal: truncated value")
	}
	if valLen > 0 {
		e.Value = append([]byte(nil), body[off:off+int(valLen)]...)
	}

	return e, nil
}

func (e *Entry) String() string {
	return fmt.Sprintf("WAL[seq=%d txn=%d op=%s keylen=%d vallen=%d]",
		e.Seq, e.TxnID, e.Op, len(e.Key), len(e.Value))
}
