package mvcc

import "testing"

func TestBeginAllocatesMonotonicIDs(t *testing.T) {
	o := NewOracle(nil)
	a := o.Begin(ReadWrite)
	b := o.Begin(ReadWrite)
	if b <= a {
		t.Fatalf("txn ids not monotonic: %d then %d", a, b)
	}
}

func TestSnapshotExcludesSelfIncludesOtherActive(t *testing.T) {
	o := NewOracle(nil)
	a := o.Begin(ReadWrite)
	b := o.Begin(ReadWrite)

	snapB := o.Snapshot(b)
	found := false
	for _, id := range snapB {
		if id == a {
			found = true
		}
		if id == b {
			t.Error("snapshot should not include self")
		}
	}
	if !found {
		t.Error("snapshot of b should include still-active a")
	}
}

func TestCommitSucceedsWithNoConflict(t *testing.T) {
	o := NewOracle(nil)
	a := o.Begin(ReadWrite)
	o.RecordWrite(a, []byte("k1"))
	if _, err := o.Commit(a); err != nil {
		t.Fatalf("Commit() = %v, want success", err)
	}
}

func TestFirstCommitterWins(t *testing.T) {
	o := NewOracle(nil)
	t1 := o.Begin(ReadWrite)
	t2 := o.Begin(ReadWrite)

	o.RecordWrite(t1, []byte("k"))
	o.RecordWrite(t2, []byte("k"))

	if _, err := o.Commit(t1); err != nil {
		t.Fatalf("T1 commit should succeed: %v", err)
	}
	if _, err := o.Commit(t2); err == nil {
		t.Fatal("T2 commit should fail with a write-write conflict")
	}
}

func TestAbortRemovesFromActiveSet(t *testing.T) {
	o := NewOracle(nil)
	a := o.Begin(ReadWrite)
	o.Abort(a)

	b := o.Begin(ReadWrite)
	snapB := o.Snapshot(b)
	for _, id := range snapB {
		if id == a {
			t.Error("aborted txn should not remain in another txn's snapshot")
		}
	}
}

func TestNonConflictingCommitsBothSucceed(t *testing.T) {
	o := NewOracle(nil)
	t1 := o.Begin(ReadWrite)
	t2 := o.Begin(ReadWrite)

	o.RecordWrite(t1, []byte("k1"))
	o.RecordWrite(t2, []byte("k2"))

	if _, err := o.Commit(t1); err != nil {
		t.Fatalf("T1 commit: %v", err)
	}
	if _, err := o.Commit(t2); err != nil {
		t.Fatalf("T2 commit (disjoint write-set) should succeed: %v", err)
	}
}
