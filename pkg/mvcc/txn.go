package mvcc

import (
	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/internal/logger"
)

// Txn is a per-connection snapshot-isolation transaction handle: it buffers
// writes privately until commit, reads its own buffer before falling
// through to a snapshot read, and reports its write set to the oracle for
// conflict detection at commit time. Reads are not recorded.
//
// Grounded on the original implementation's MvccTransactionContext
// (mvcc_transaction.rs): begin/read/write/delete/commit/rollback carry the
// same state machine and buffering discipline.
type Txn struct {
	oracle  *Oracle
	storage *Storage
	log     *logger.Logger

	active  bool
	txnID   uint64
	mode    Mode
	snap    Snapshot
	buffer  map[string][]byte
	deleted map[string]bool
	writes  []string // insertion order, for deterministic commit iteration
}

func NewTxn(oracle *Oracle, storage *Storage, log *logger.Logger) *Txn {
	return &Txn{oracle: oracle, storage: storage, log: log}
}

// Begin starts a transaction, allocating a txn id and snapshotting the
// currently-active transaction set. Calling Begin while already active is
// a no-op that returns the current id (matches the original's "BEGIN
// within a transaction continues the current one" PostgreSQL-like
// behavior).
func (t *Txn) Begin(mode Mode) uint64 {
	if t.active {
		return t.txnID
	}

	id := t.oracle.Begin(mode)
	activeSet := t.oracle.Snapshot(id)

	set := make(map[uint64]struct{}, len(activeSet))
	for _, a := range activeSet {
		set[a] = struct{}{}
	}

	t.active = true
	t.txnID = id
	t.mode = mode
	t.snap = Snapshot{TxnID: id, StartTS: id, ActiveSet: set}
	t.buffer = make(map[string][]byte)
	t.deleted = make(map[string]bool)
	t.writes = nil

	if t.log != nil {
		t.log.MvccLogger().Info("transaction started").Uint64("txn", id).Send()
	}
	return id
}

func (t *Txn) TxnID() uint64   { return t.txnID }
func (t *Txn) IsActive() bool  { return t.active }

// Read implements read-your-own-writes: check the write buffer first, else
// fall through to a snapshot read against storage.
func (t *Txn) Read(key []byte) ([]byte, bool, error) {
	if !t.active {
		return nil, false, dberr.InvalidInputf("mvcc: read outside a transaction")
	}
	k := string(key)
	if t.deleted[k] {
		return nil, false, nil
	}
	if v, ok := t.buffer[k]; ok {
		return v, true, nil
	}
	v, ok := t.storage.GetSnapshotVersion(key, t.snap.StartTS)
	return v, ok, nil
}

// Write buffers a key/value, to be persisted on commit.
func (t *Txn) Write(key, value []byte) error {
	if !t.active {
		return dberr.InvalidInputf("mvcc: write outside a transaction")
	}
	if t.mode == ReadOnly {
		return dberr.InvalidInputf("mvcc: write in a read-only transaction")
	}
	k := string(key)
	if _, existed := t.buffer[k]; !existed {
		t.writes = append(t.writes, k)
	}
	t.buffer[k] = value
	delete(t.deleted, k)
	t.oracle.RecordWrite(t.txnID, key)
	return nil
}

// Delete buffers a tombstone for key.
func (t *Txn) Delete(key []byte) error {
	if !t.active {
		return dberr.InvalidInputf("mvcc: delete outside a transaction")
	}
	if t.mode == ReadOnly {
		return dberr.InvalidInputf("mvcc: delete in a read-only transaction")
	}
	k := string(key)
	if _, existed := t.buffer[k]; !existed {
		t.writes = append(t.writes, k)
	}
	t.buffer[k] = nil
	t.deleted[k] = true
	t.oracle.RecordWrite(t.txnID, key)
	return nil
}

// Commit validates the transaction against the oracle (first-committer-wins)
// and, on success, persists every buffered write/delete to storage. On a
// conflict the transaction is rolled back and the conflict error returned.
func (t *Txn) Commit() (uint64, error) {
	if !t.active {
		return 0, dberr.InvalidInputf("mvcc: commit outside a transaction")
	}

	commitTS, err := t.oracle.Commit(t.txnID)
	if err != nil {
		t.rollbackState()
		return 0, err
	}

	var entries []VersionEntry
	for _, k := range t.writes {
		key := []byte(k)
		if t.deleted[k] {
			if derr := t.storage.DeleteVersion(key, commitTS); derr != nil {
				// Tombstoning a key with no prior version (insert-then-
				// delete within the same uncommitted txn) is not an error:
				// there is simply nothing to mark ended.
				if !dberr.IsKind(derr, dberr.NotFound) {
					return 0, derr
				}
			}
			continue
		}
		entries = append(entries, VersionEntry{Key: key, Value: t.buffer[k], TxnID: t.txnID})
	}
	if len(entries) > 0 {
		t.storage.InsertVersionBatch(entries)
	}

	if t.log != nil {
		t.log.MvccLogger().Info("transaction committed").
			Uint64("txn", t.txnID).Uint64("commit_ts", commitTS).Int("writes", len(t.writes)).Send()
	}

	t.rollbackState()
	return commitTS, nil
}

// Rollback discards all buffered changes and aborts the transaction in the
// oracle. A Rollback outside a transaction is a no-op (matches "drop
// without commit auto-rollbacks, no commit-on-drop").
func (t *Txn) Rollback() {
	if !t.active {
		return
	}
	t.oracle.Abort(t.txnID)
	if t.log != nil {
		t.log.MvccLogger().Info("transaction rolled back").Uint64("txn", t.txnID).Send()
	}
	t.rollbackState()
}

func (t *Txn) rollbackState() {
	t.active = false
	t.buffer = nil
	t.deleted = nil
	t.writes = nil
}
