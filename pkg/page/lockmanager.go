package page

import (
	"sync"
	"time"

	"github.com/omendb/omendb/internal/dberr"
)

// LockMode is the granularity of a page lock request.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

func compatible(holders map[uint64]LockMode, mode LockMode) bool {
	if len(holders) == 0 {
		return true
	}
	if mode == Exclusive {
		return false
	}
	// mode == Shared: compatible only if every current holder is Shared.
	for _, m := range holders {
		if m == Exclusive {
			return false
		}
	}
	return true
}

type lockEntry struct {
	holders map[uint64]LockMode
	waiters []uint64 // FIFO record, informational only (spec: "not a strict fairness guarantee")
}

// LockManager is the per-page read/write lock table with deadlock
// detection and timeout-bounded acquire (spec.md §4.2).
type LockManager struct {
	mu          sync.Mutex
	table        map[PageID]*lockEntry
	holdsByTxn   map[uint64]map[PageID]bool
	waitingTxn   map[uint64]PageID // a txn blocks on at most one page at a time
	Timeout      time.Duration
	PollInterval time.Duration
}

func NewLockManager(timeout time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LockManager{
		table:        make(map[PageID]*lockEntry),
		holdsByTxn:   make(map[uint64]map[PageID]bool),
		waitingTxn:   make(map[uint64]PageID),
		Timeout:      timeout,
		PollInterval: 2 * time.Millisecond,
	}
}

// Acquire blocks (polling at coarse intervals) until the lock is granted,
// a deadlock is detected, or the timeout elapses.
func (lm *LockManager) Acquire(txnID uint64, id PageID, mode LockMode) error {
	deadline := time.Now().Add(lm.Timeout)
	for {
		lm.mu.Lock()
		e, ok := lm.table[id]
		if !ok {
			e = &lockEntry{holders: make(map[uint64]LockMode)}
			lm.table[id] = e
		}

		// Re-entry: a request by a txn already holding the lock is a no-op;
		// the mode is never downgraded.
		if _, held := e.holders[txnID]; held {
			lm.mu.Unlock()
			return nil
		}

		if compatible(e.holders, mode) {
			e.holders[txnID] = mode
			lm.trackHold(txnID, id)
			delete(lm.waitingTxn, txnID)
			lm.mu.Unlock()
			return nil
		}

		if lm.hasCycleLocked(txnID, id) {
			lm.mu.Unlock()
			return dberr.Conflictf("page: deadlock detected acquiring page %d for txn %d", id, txnID)
		}

		if time.Now().After(deadline) {
			delete(lm.waitingTxn, txnID)
			lm.mu.Unlock()
			return dberr.Timeoutf("page: timed out acquiring page %d for txn %d", id, txnID)
		}

		lm.waitingTxn[txnID] = id
		e.waiters = append(e.waiters, txnID)
		lm.mu.Unlock()
		time.Sleep(lm.PollInterval)
	}
}

// hasCycleLocked reports whether txnID waiting on page id would close a
// cycle in the wait-for graph. Caller must hold lm.mu.
func (lm *LockManager) hasCycleLocked(txnID uint64, id PageID) bool {
	visited := make(map[uint64]bool)
	var dfs func(PageID) bool
	dfs = func(p PageID) bool {
		e, ok := lm.table[p]
		if !ok {
			return false
		}
		for h := range e.holders {
			if h == txnID {
				return true
			}
			if visited[h] {
				continue
			}
			visited[h] = true
			if waitingPage, blocked := lm.waitingTxn[h]; blocked {
				if dfs(waitingPage) {
					return true
				}
			}
		}
		return false
	}
	return dfs(id)
}

func (lm *LockManager) trackHold(txnID uint64, id PageID) {
	pages, ok := lm.holdsByTxn[txnID]
	if !ok {
		pages = make(map[PageID]bool)
		lm.holdsByTxn[txnID] = pages
	}
	pages[id] = true
}

// Release releases txnID's hold on a single page.
func (lm *LockManager) Release(txnID uint64, id PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(txnID, id)
}

func (lm *LockManager) releaseLocked(txnID uint64, id PageID) {
	e, ok := lm.table[id]
	if !ok {
		return
	}
	delete(e.holders, txnID)
	if pages := lm.holdsByTxn[txnID]; pages != nil {
		delete(pages, id)
	}
	if len(e.holders) == 0 && len(e.waiters) == 0 {
		delete(lm.table, id)
	}
}

// ReleaseAll releases every page held by txnID and prunes it from the
// wait-for graph. Called on both commit and abort.
func (lm *LockManager) ReleaseAll(txnID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for id := range lm.holdsByTxn[txnID] {
		lm.releaseLocked(txnID, id)
	}
	delete(lm.holdsByTxn, txnID)
	delete(lm.waitingTxn, txnID)
}

// Upgrade moves a shared hold to exclusive via release-then-acquire.
// Callers must expect the visible window between release and re-acquire.
func (lm *LockManager) Upgrade(txnID uint64, id PageID) error {
	lm.Release(txnID, id)
	return lm.Acquire(txnID, id, Exclusive)
}
