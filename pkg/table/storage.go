// Package table implements the table abstraction: schema + columnar
// storage + learned primary-key index, plus the catalog that owns every
// table in a data directory.
//
// Grounded on the original implementation's table.rs/table_storage.rs/
// table_index.rs/catalog.rs. The original's TableStorage persists through
// Arrow/Parquet; no such library is available in the teacher+pack closure
// (SPEC_FULL.md's DOMAIN STACK), so OmenDB persists the same
// row-group-of-batches model through a small length-prefixed binary
// container built directly on pkg/value's own Encode/Decode, keeping the
// in-memory shape (pending rows flushed into immutable Batches at a row
// threshold) identical to the original.
package table

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/pkg/value"
)

// defaultBatchSize is the row threshold at which pending rows flush into an
// immutable batch, matching the original's TableStorage::new batch_size.
const defaultBatchSize = 10000

const storageMagic = "OMTB"
const storageVersion = 1

// TableStorage is schema-agnostic columnar storage for one table's rows:
// an append-only sequence of immutable row-group batches plus a pending
// buffer not yet large enough to flush.
type TableStorage struct {
	schema    value.Schema
	dataFile  string
	batchSize int

	batches []*value.Batch
	pending []value.Row
}

// NewTableStorage creates storage for a freshly-created table.
func NewTableStorage(schema value.Schema, tableDir string) (*TableStorage, error) {
	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return nil, dberr.IOf("table: mkdir %s: %v", tableDir, err)
	}
	return &TableStorage{
		schema:    schema,
		dataFile:  filepath.Join(tableDir, "data.batch"),
		batchSize: defaultBatchSize,
	}, nil
}

// LoadTableStorage reopens storage from an existing table directory,
// reading back whatever batches were persisted.
func LoadTableStorage(schema value.Schema, tableDir string) (*TableStorage, error) {
	s := &TableStorage{
		schema:    schema,
		dataFile:  filepath.Join(tableDir, "data.batch"),
		batchSize: defaultBatchSize,
	}
	if _, err := os.Stat(s.dataFile); os.IsNotExist(err) {
		return s, nil
	}
	batches, err := readBatchFile(s.dataFile, schema)
	if err != nil {
		return nil, err
	}
	s.batches = batches
	return s, nil
}

// Insert appends row to the pending buffer, flushing to a new batch once
// the buffer reaches batchSize rows.
func (s *TableStorage) Insert(row value.Row) error {
	if err := row.Validate(s.schema); err != nil {
		return dberr.InvalidInputf("table: %v", err)
	}
	s.pending = append(s.pending, row)
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// InsertBatch inserts every row in order.
func (s *TableStorage) InsertBatch(rows []value.Row) error {
	for _, r := range rows {
		if err := s.Insert(r); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the row at the given global position (spanning flushed
// batches, then the pending buffer).
func (s *TableStorage) Get(position int) (value.Row, error) {
	remaining := position
	for _, b := range s.batches {
		if remaining < b.NumRows {
			return b.Row(remaining), nil
		}
		remaining -= b.NumRows
	}
	if remaining < len(s.pending) {
		return s.pending[remaining], nil
	}
	return nil, dberr.NotFoundf("table: position %d out of bounds", position)
}

// GetMany returns rows for each of positions, in order.
func (s *TableStorage) GetMany(positions []int) ([]value.Row, error) {
	rows := make([]value.Row, 0, len(positions))
	for _, p := range positions {
		r, err := s.Get(p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// ScanAll returns every row, flushed batches first then pending.
func (s *TableStorage) ScanAll() []value.Row {
	rows := make([]value.Row, 0, s.RowCount())
	for _, b := range s.batches {
		rows = append(rows, value.RowsFromBatch(b)...)
	}
	rows = append(rows, s.pending...)
	return rows
}

// ScanBatches flushes the pending buffer and returns every batch.
func (s *TableStorage) ScanBatches() ([]*value.Batch, error) {
	if len(s.pending) > 0 {
		if err := s.Flush(); err != nil {
			return nil, err
		}
	}
	return s.batches, nil
}

// RowCount is the total row count across flushed batches and pending rows.
func (s *TableStorage) RowCount() int {
	n := 0
	for _, b := range s.batches {
		n += b.NumRows
	}
	return n + len(s.pending)
}

// Flush converts the pending row buffer into one immutable batch.
func (s *TableStorage) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	b, err := value.BatchFromRows(s.schema, s.pending)
	if err != nil {
		return dberr.InvalidInputf("table: flush: %v", err)
	}
	s.batches = append(s.batches, b)
	s.pending = nil
	return nil
}

// Persist flushes pending rows and writes every batch to the table's data
// file, replacing whatever was there before.
func (s *TableStorage) Persist() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if len(s.batches) == 0 {
		return nil
	}
	return writeBatchFile(s.dataFile, s.schema, s.batches)
}

// --- on-disk container ---
//
// magic(4) | version(1) | numBatches(u32) | for each batch: numRows(u32),
// then numRows * numFields values, each: vallen(u32) ++ value.Encode bytes.

func writeBatchFile(path string, schema value.Schema, batches []*value.Batch) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dberr.IOf("table: create %s: %v", tmp, err)
	}

	if err := writeBatchFileTo(f, batches); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return dberr.IOf("table: sync %s: %v", tmp, err)
	}
	if err := f.Close(); err != nil {
		return dberr.IOf("table: close %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return dberr.IOf("table: rename %s -> %s: %v", tmp, path, err)
	}
	return nil
}

func writeBatchFileTo(w io.Writer, batches []*value.Batch) error {
	if _, err := w.Write([]byte(storageMagic)); err != nil {
		return dberr.IOf("table: write magic: %v", err)
	}
	if _, err := w.Write([]byte{storageVersion}); err != nil {
		return dberr.IOf("table: write version: %v", err)
	}
	if err := writeU32(w, uint32(len(batches))); err != nil {
		return err
	}
	for _, b := range batches {
		if err := writeU32(w, uint32(b.NumRows)); err != nil {
			return err
		}
		for i := 0; i < b.NumRows; i++ {
			row := b.Row(i)
			for _, v := range row {
				enc := value.Encode(v)
				if err := writeU32(w, uint32(len(enc))); err != nil {
					return err
				}
				if _, err := w.Write(enc); err != nil {
					return dberr.IOf("table: write value: %v", err)
				}
			}
		}
	}
	return nil
}

func readBatchFile(path string, schema value.Schema) ([]*value.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberr.IOf("table: open %s: %v", path, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, dberr.Corruptionf("table: truncated magic in %s", path)
	}
	if string(magic[:]) != storageMagic {
		return nil, dberr.Corruptionf("table: bad magic in %s", path)
	}
	var version [1]byte
	if _, err := io.ReadFull(f, version[:]); err != nil {
		return nil, dberr.Corruptionf("table: truncated version in %s", path)
	}

	numBatches, err := readU32(f)
	if err != nil {
		return nil, err
	}

	numFields := len(schema.Fields)
	batches := make([]*value.Batch, 0, numBatches)
	for i := uint32(0); i < numBatches; i++ {
		numRows, err := readU32(f)
		if err != nil {
			return nil, err
		}
		rows := make([]value.Row, numRows)
		for r := uint32(0); r < numRows; r++ {
			row := make(value.Row, numFields)
			for c := 0; c < numFields; c++ {
				vlen, err := readU32(f)
				if err != nil {
					return nil, err
				}
				buf := make([]byte, vlen)
				if _, err := io.ReadFull(f, buf); err != nil {
					return nil, dberr.Corruptionf("table: truncated value in %s: %v", path, err)
				}
				v, _, err := value.Decode(buf)
				if err != nil {
					return nil, dberr.Corruptionf("table: decode value in %s: %v", path, err)
				}
				row[c] = v
			}
			rows[r] = row
		}
		b, err := value.BatchFromRows(schema, rows)
		if err != nil {
			return nil, dberr.Corruptionf("table: reconstruct batch from %s: %v", path, err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return dberr.IOf("table: write u32: %v", err)
	}
	return nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, dberr.Corruptionf("table: truncated length prefix: %v", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// encodeRowValues serializes a row the same way the batch container
// encodes one row's values, for reuse as the catalog's InsertRow WAL
// payload (spec.md §4.7's "InsertRow{table, values}").
func encodeRowValues(row value.Row) []byte {
	var buf []byte
	lenBuf := make([]byte, 4)
	for _, v := range row {
		enc := value.Encode(v)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(enc)))
		buf = append(buf, lenBuf...)
		buf = append(buf, enc...)
	}
	return buf
}

// decodeRowValues reverses encodeRowValues for numFields columns.
func decodeRowValues(data []byte, numFields int) (value.Row, error) {
	row := make(value.Row, numFields)
	off := 0
	for c := 0; c < numFields; c++ {
		if off+4 > len(data) {
			return nil, dberr.Corruptionf("table: truncated row values at column %d", c)
		}
		vlen := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		if off+int(vlen) > len(data) {
			return nil, dberr.Corruptionf("table: truncated row value at column %d", c)
		}
		v, _, err := value.Decode(data[off : off+int(vlen)])
		if err != nil {
			return nil, dberr.Corruptionf("table: decode row value at column %d: %v", c, err)
		}
		row[c] = v
		off += int(vlen)
	}
	return row, nil
}
