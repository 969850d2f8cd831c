package mvcc

import (
	"encoding/binary"
	"sync"

	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/internal/logger"
)

// OrderedStore is the byte-keyed, lexically-ordered KV engine MvccStorage
// is layered over. pkg/btree.BTree satisfies this; spec.md §4.8 notes a
// third-party ordered store would serve equally well.
type OrderedStore interface {
	Get(key []byte) ([]byte, bool)
	Insert(key, val []byte)
	Scan(start []byte, callback func(key, val []byte) bool)
}

// Storage is the MVCC-aware versioned storage layer: every write appends a
// new version keyed by `user_key ⧺ BE(INV(txn_id))`, inverting txn_id so a
// forward scan from a user_key prefix visits versions newest-first.
//
// Grounded on the original implementation's MvccStorage (mvcc_storage.rs),
// generalized from its RocksDB+ALEX pairing to the B+Tree + in-memory
// latest-version index used here.
type Storage struct {
	store OrderedStore

	mu     sync.RWMutex
	latest map[string]uint64 // user_key -> most recent txn_id that wrote it

	log *logger.Logger
}

func NewStorage(store OrderedStore, log *logger.Logger) *Storage {
	return &Storage{
		store:  store,
		latest: make(map[string]uint64),
		log:    log,
	}
}

// invert reverses txn_id ordering so that encoding it big-endian after
// inverting makes a forward byte-order scan visit higher txn_ids first.
func invert(txnID uint64) uint64 { return ^txnID }

func versionedKey(userKey []byte, txnID uint64) []byte {
	k := make([]byte, len(userKey)+8)
	copy(k, userKey)
	binary.BigEndian.PutUint64(k[len(userKey):], invert(txnID))
	return k
}

// encodeVersion serializes a Version's payload: value length, value bytes,
// begin_ts, has_end flag, end_ts.
func encodeVersion(v Version) []byte {
	buf := make([]byte, 0, 4+len(v.Value)+8+1+8)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v.Value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, v.Value...)
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], v.BeginTS)
	buf = append(buf, tsBuf[:]...)
	if v.HasEnd {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	binary.LittleEndian.PutUint64(tsBuf[:], v.EndTS)
	buf = append(buf, tsBuf[:]...)
	return buf
}

func decodeVersion(data []byte) (Version, error) {
	if len(data) < 4 {
		return Version{}, dberr.Corruptionf("mvcc: truncated version record")
	}
	n := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n+8+1+8 {
		return Version{}, dberr.Corruptionf("mvcc: truncated version record")
	}
	value := append([]byte(nil), data[:n]...)
	data = data[n:]
	beginTS := binary.LittleEndian.Uint64(data[:8])
	data = data[8:]
	hasEnd := data[0] != 0
	data = data[1:]
	endTS := binary.LittleEndian.Uint64(data[:8])
	return Version{Value: value, BeginTS: beginTS, EndTS: endTS, HasEnd: hasEnd}, nil
}

// InsertVersion writes a new version of key with begin_ts = txnID and
// updates the latest-version index.
func (s *Storage) InsertVersion(key, value []byte, txnID uint64) {
	s.store.Insert(versionedKey(key, txnID), encodeVersion(Version{Value: value, BeginTS: txnID}))

	s.mu.Lock()
	s.latest[string(key)] = txnID
	s.mu.Unlock()
}

// VersionEntry is one (key, value, txn_id) write destined for a batch.
type VersionEntry struct {
	Key, Value []byte
	TxnID      uint64
}

// InsertVersionBatch writes every entry; not atomic at the store level
// (the underlying BTree has no multi-key transaction primitive of its
// own), but applied in a single call so callers can treat the commit's
// write set as one step.
func (s *Storage) InsertVersionBatch(entries []VersionEntry) {
	for _, e := range entries {
		s.InsertVersion(e.Key, e.Value, e.TxnID)
	}
}

// GetLatestVersion returns the most recently written version of key,
// ignoring snapshot isolation (used outside transactional reads).
func (s *Storage) GetLatestVersion(key []byte) (Version, bool) {
	s.mu.RLock()
	txnID, ok := s.latest[string(key)]
	s.mu.RUnlock()
	if !ok {
		return Version{}, false
	}
	raw, ok := s.store.Get(versionedKey(key, txnID))
	if !ok {
		return Version{}, false
	}
	v, err := decodeVersion(raw)
	if err != nil {
		return Version{}, false
	}
	return v, true
}

// GetSnapshotVersion prefix-scans key's versions newest-first and returns
// the first one satisfying `begin_ts ≤ snapshotTS AND (no end OR end_ts >
// snapshotTS)`, per spec.md §4.8.
func (s *Storage) GetSnapshotVersion(key []byte, snapshotTS uint64) ([]byte, bool) {
	var result []byte
	var found bool

	s.store.Scan(key, func(k, v []byte) bool {
		if len(k) < len(key) || string(k[:len(key)]) != string(key) {
			return false
		}
		if len(k) != len(key)+8 {
			return true // a longer user key sharing this prefix, not a version of key
		}
		ver, err := decodeVersion(v)
		if err != nil {
			return true // skip corrupt entry, keep scanning
		}
		if ver.BeginTS > snapshotTS {
			return true
		}
		if ver.HasEnd && ver.EndTS <= snapshotTS {
			return true
		}
		result = ver.Value
		found = true
		return false
	})
	return result, found
}

// DeleteVersion marks key's latest version as ended at endTS (a tombstone
// in spec.md terms, applied at commit time for a transaction's buffered
// delete).
func (s *Storage) DeleteVersion(key []byte, endTS uint64) error {
	s.mu.RLock()
	txnID, ok := s.latest[string(key)]
	s.mu.RUnlock()
	if !ok {
		return dberr.NotFoundf("mvcc: key has no version to delete")
	}

	vk := versionedKey(key, txnID)
	raw, ok := s.store.Get(vk)
	if !ok {
		return dberr.NotFoundf("mvcc: version not found in store")
	}
	v, err := decodeVersion(raw)
	if err != nil {
		return err
	}
	v.HasEnd = true
	v.EndTS = endTS
	s.store.Insert(vk, encodeVersion(v))
	return nil
}
