package table

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/internal/logger"
	"github.com/omendb/omendb/pkg/value"
)

// tableMetadata is the on-disk record of a table's user-facing shape
// (spec.md §4.6 "save metadata (user schema + PK name) as JSON").
type tableMetadata struct {
	Name       string         `json:"name"`
	PrimaryKey string         `json:"primary_key"`
	Schema     []schemaField  `json:"schema"`
}

type schemaField struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Table combines a user schema, MVCC-augmented columnar storage, and a
// learned index over the primary key.
//
// Grounded on the original's table.rs: every method below mirrors its
// Rust counterpart (insert/batch_insert/get/range_query/update/delete/
// scan_all/scan_batches/row_count/persist), generalized to Go idiom
// (explicit error returns, mutex-guarded state instead of &mut self).
type Table struct {
	mu sync.RWMutex

	name           string
	userSchema     value.Schema
	internalSchema value.Schema
	pk             string
	pkIndex        int

	tableDir string
	storage  *TableStorage
	index    *TableIndex

	nextVersion  uint64
	currentTxnID uint64

	log *logger.Logger
}

// New creates a table, validating the primary key and persisting its
// metadata (spec.md §4.6 "Construction").
func New(name string, userSchema value.Schema, pk string, tableDir string, log *logger.Logger) (*Table, error) {
	pkIndex := userSchema.IndexOf(pk)
	if pkIndex < 0 {
		return nil, dberr.InvalidInputf("table: primary key column %q not found in schema", pk)
	}
	pkField := userSchema.Fields[pkIndex]
	if !isIndexableKeyType(pkField.Type) {
		return nil, dberr.InvalidInputf("table: primary key %q has non-indexable type %s", pk, pkField.Type)
	}

	internalSchema := userSchema.WithMVCCColumns()

	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return nil, dberr.IOf("table: mkdir %s: %v", tableDir, err)
	}

	storage, err := NewTableStorage(internalSchema, tableDir)
	if err != nil {
		return nil, err
	}

	t := &Table{
		name:           name,
		userSchema:     userSchema,
		internalSchema: internalSchema,
		pk:             pk,
		pkIndex:        pkIndex,
		tableDir:       tableDir,
		storage:        storage,
		index:          NewTableIndex(defaultBatchSize, log),
		nextVersion:    0,
		log:            log,
	}

	if err := t.saveMetadata(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reopens a table previously created under tableDir, rebuilding the
// index from the current (non-deleted, latest-version) rows.
func Load(name string, tableDir string, log *logger.Logger) (*Table, error) {
	meta, err := loadMetadata(tableDir)
	if err != nil {
		return nil, err
	}

	fields := make([]value.Field, len(meta.Schema))
	for i, f := range meta.Schema {
		typ, err := parseType(f.DataType)
		if err != nil {
			return nil, err
		}
		fields[i] = value.Field{Name: f.Name, Type: typ, Nullable: f.Nullable}
	}
	userSchema := value.NewSchema(fields...)
	pkIndex := userSchema.IndexOf(meta.PrimaryKey)
	if pkIndex < 0 {
		return nil, dberr.Corruptionf("table: metadata primary key %q missing from schema", meta.PrimaryKey)
	}
	internalSchema := userSchema.WithMVCCColumns()

	storage, err := LoadTableStorage(internalSchema, tableDir)
	if err != nil {
		return nil, err
	}

	allRows := storage.ScanAll()
	var maxVersion uint64
	for _, row := range allRows {
		if v := row.MVCCVersion(); v > maxVersion {
			maxVersion = v
		}
	}

	index := NewTableIndex(storage.RowCount(), log)
	for position, row := range allRows {
		if row.MVCCDeleted() {
			continue
		}
		if err := index.Insert(row[pkIndex], position); err != nil {
			return nil, err
		}
	}

	return &Table{
		name:           name,
		userSchema:     userSchema,
		internalSchema: internalSchema,
		pk:             meta.PrimaryKey,
		pkIndex:        pkIndex,
		tableDir:       tableDir,
		storage:        storage,
		index:          index,
		nextVersion:    maxVersion + 1,
		log:            log,
	}, nil
}

// Insert validates row against the user schema, stamps MVCC columns, and
// records it as the visible version for its primary key.
func (t *Table) Insert(row value.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(row)
}

func (t *Table) insertLocked(row value.Row) error {
	if err := row.Validate(t.userSchema); err != nil {
		return dberr.InvalidInputf("table: %v", err)
	}
	pkValue := row[t.pkIndex]

	version := t.nextVersion
	t.nextVersion++
	internalRow := row.WithMVCCColumns(version, t.currentTxnID, false)

	position := t.storage.RowCount()
	if err := t.index.Insert(pkValue, position); err != nil {
		return err
	}
	return t.storage.Insert(internalRow)
}

// BatchInsert sorts rows by primary key before inserting individually,
// turning a random-order bulk load into sequential load for the learned
// index (spec.md §4.6 "Batch insert").
func (t *Table) BatchInsert(rows []value.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range rows {
		if err := r.Validate(t.userSchema); err != nil {
			return 0, dberr.InvalidInputf("table: %v", err)
		}
	}

	sorted := append([]value.Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return value.Compare(sorted[i][t.pkIndex], sorted[j][t.pkIndex]) < 0
	})

	for _, r := range sorted {
		if err := t.insertLocked(r); err != nil {
			return 0, err
		}
	}
	return len(sorted), nil
}

// Get returns the current visible row for key, or ok=false if absent or
// its current version is a tombstone.
func (t *Table) Get(key value.Value) (value.Row, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	position, ok, err := t.index.Search(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	internalRow, err := t.storage.Get(position)
	if err != nil {
		return nil, false, err
	}
	if internalRow.MVCCDeleted() {
		return nil, false, nil
	}
	return internalRow.StripMVCCColumns(), true, nil
}

// RangeQuery returns every visible row whose primary key lies in
// [start, end].
func (t *Table) RangeQuery(start, end value.Value) ([]value.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	positions, err := t.index.RangeQuery(start, end)
	if err != nil {
		return nil, err
	}
	rows, err := t.storage.GetMany(positions)
	if err != nil {
		return nil, err
	}

	out := make([]value.Row, 0, len(rows))
	for _, r := range rows {
		if !r.MVCCDeleted() {
			out = append(out, r.StripMVCCColumns())
		}
	}
	return out, nil
}

// Update appends a new version of the row at key with updatedRow's user
// columns, retargeting the index to the new version. Returns a NotFound
// error if the key is absent, and 0 if its row is already deleted
// (spec.md §4.6 "Update").
func (t *Table) Update(key value.Value, updatedRow value.Row) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := updatedRow.Validate(t.userSchema); err != nil {
		return 0, dberr.InvalidInputf("table: %v", err)
	}

	position, ok, err := t.index.Search(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, dberr.NotFoundf("table: row with key %v not found", key)
	}
	existing, err := t.storage.Get(position)
	if err != nil {
		return 0, err
	}
	if existing.MVCCDeleted() {
		return 0, nil
	}

	version := t.nextVersion
	t.nextVersion++
	newRow := updatedRow.WithMVCCColumns(version, t.currentTxnID, false)

	newPosition := t.storage.RowCount()
	if err := t.index.Insert(key, newPosition); err != nil {
		return 0, err
	}
	if err := t.storage.Insert(newRow); err != nil {
		return 0, err
	}
	return 1, nil
}

// Delete appends a tombstone version for key, retargeting the index to it.
// Returns a NotFound error if the key is absent, and 0 if its row is
// already deleted.
func (t *Table) Delete(key value.Value) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	position, ok, err := t.index.Search(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, dberr.NotFoundf("table: row with key %v not found", key)
	}
	existing, err := t.storage.Get(position)
	if err != nil {
		return 0, err
	}
	if existing.MVCCDeleted() {
		return 0, nil
	}

	version := t.nextVersion
	t.nextVersion++
	userValues := append(value.Row(nil), existing[:len(t.userSchema.Fields)]...)
	tombstone := userValues.WithMVCCColumns(version, t.currentTxnID, true)

	newPosition := t.storage.RowCount()
	if err := t.storage.Insert(tombstone); err != nil {
		return 0, err
	}
	if err := t.index.Insert(key, newPosition); err != nil {
		return 0, err
	}
	return 1, nil
}

// SetTransactionID tags subsequent Insert/Update/Delete calls with txnID
// (0 means non-transactional).
func (t *Table) SetTransactionID(txnID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentTxnID = txnID
}

// ScanAll returns every row whose position is the index's current mapping
// for its primary key and which is not deleted — "latest visible version
// per PK" (spec.md §4.6 "scan_all").
func (t *Table) ScanAll() ([]value.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := t.storage.ScanAll()
	out := make([]value.Row, 0, len(all))
	for position, internalRow := range all {
		pkValue := internalRow[t.pkIndex]
		indexedPosition, ok, err := t.index.Search(pkValue)
		if err != nil {
			return nil, err
		}
		if ok && indexedPosition == position && !internalRow.MVCCDeleted() {
			out = append(out, internalRow.StripMVCCColumns())
		}
	}
	return out, nil
}

// ScanBatches returns the table's internal (MVCC-augmented) columnar
// batches, flushing pending rows first.
func (t *Table) ScanBatches() ([]*value.Batch, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storage.ScanBatches()
}

// RowCount returns the total number of physical rows stored, including
// superseded versions and tombstones.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.storage.RowCount()
}

// Persist flushes pending rows to the table's data file and rewrites its
// metadata JSON.
func (t *Table) Persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.storage.Persist(); err != nil {
		return err
	}
	return t.saveMetadata()
}

func (t *Table) Name() string            { return t.name }
func (t *Table) Schema() value.Schema    { return t.userSchema }
func (t *Table) PrimaryKey() string      { return t.pk }
func (t *Table) PrimaryKeyIndex() int    { return t.pkIndex }

func (t *Table) saveMetadata() error {
	fields := make([]schemaField, len(t.userSchema.Fields))
	for i, f := range t.userSchema.Fields {
		fields[i] = schemaField{Name: f.Name, DataType: f.Type.String(), Nullable: f.Nullable}
	}
	meta := tableMetadata{Name: t.name, PrimaryKey: t.pk, Schema: fields}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dberr.IOf("table: marshal metadata: %v", err)
	}
	path := filepath.Join(t.tableDir, "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dberr.IOf("table: write metadata %s: %v", path, err)
	}
	return nil
}

func loadMetadata(tableDir string) (tableMetadata, error) {
	path := filepath.Join(tableDir, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return tableMetadata{}, dberr.IOf("table: read metadata %s: %v", path, err)
	}
	var meta tableMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return tableMetadata{}, dberr.Corruptionf("table: parse metadata %s: %v", path, err)
	}
	return meta, nil
}

func parseType(s string) (value.Type, error) {
	switch s {
	case "int64":
		return value.Int64, nil
	case "uint64":
		return value.UInt64, nil
	case "float64":
		return value.Float64, nil
	case "text":
		return value.Text, nil
	case "timestamp":
		return value.Timestamp, nil
	case "boolean":
		return value.Boolean, nil
	case "vector":
		return value.Vector, nil
	default:
		return 0, dberr.Corruptionf("table: unknown data type %q in metadata", s)
	}
}
