package mvcc

import "testing"

func newHarness() (*Oracle, *Storage) {
	o := NewOracle(nil)
	s := NewStorage(&memStore{}, nil)
	return o, s
}

func TestReadYourOwnWritesWithinTxn(t *testing.T) {
	o, s := newHarness()
	txn := NewTxn(o, s, nil)
	txn.Begin(ReadWrite)

	if err := txn.Write([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok, err := txn.Read([]byte("k"))
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Read after Write = %q, %v, %v; want v1, true, nil", got, ok, err)
	}
}

func TestSnapshotIsolationAcrossTxns(t *testing.T) {
	o, s := newHarness()

	t1 := NewTxn(o, s, nil)
	t1.Begin(ReadWrite)
	t1.Write([]byte("k"), []byte("v1"))
	if _, err := t1.Commit(); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	t2 := NewTxn(o, s, nil)
	t2.Begin(ReadOnly)
	got, ok, _ := t2.Read([]byte("k"))
	if !ok || string(got) != "v1" {
		t.Fatalf("t2 initial read = %q, %v; want v1, true", got, ok)
	}

	t3 := NewTxn(o, s, nil)
	t3.Begin(ReadWrite)
	t3.Write([]byte("k"), []byte("v2"))
	if _, err := t3.Commit(); err != nil {
		t.Fatalf("t3 commit: %v", err)
	}

	got, ok, _ = t2.Read([]byte("k"))
	if !ok || string(got) != "v1" {
		t.Fatalf("t2 should still see v1 after t3 commits: got %q, %v", got, ok)
	}
}

func TestWriteWriteConflictAbortsLoser(t *testing.T) {
	o, s := newHarness()

	t1 := NewTxn(o, s, nil)
	t1.Begin(ReadWrite)
	t2 := NewTxn(o, s, nil)
	t2.Begin(ReadWrite)

	t1.Write([]byte("k"), []byte("v1"))
	t2.Write([]byte("k"), []byte("v2"))

	if _, err := t1.Commit(); err != nil {
		t.Fatalf("t1 commit should succeed: %v", err)
	}
	if _, err := t2.Commit(); err == nil {
		t.Fatal("t2 commit should fail with a conflict")
	}
	if t2.IsActive() {
		t.Error("t2 should be rolled back (inactive) after a failed commit")
	}

	v, ok := s.GetLatestVersion([]byte("k"))
	if !ok || string(v.Value) != "v1" {
		t.Errorf("storage should retain t1's committed version, got %+v, %v", v, ok)
	}
}

func TestReadOnlyTxnRejectsWrites(t *testing.T) {
	o, s := newHarness()
	txn := NewTxn(o, s, nil)
	txn.Begin(ReadOnly)
	if err := txn.Write([]byte("k"), []byte("v")); err == nil {
		t.Error("write on a read-only transaction should fail")
	}
}

func TestRollbackDiscardsBufferedWrites(t *testing.T) {
	o, s := newHarness()
	txn := NewTxn(o, s, nil)
	txn.Begin(ReadWrite)
	txn.Write([]byte("k"), []byte("v"))
	txn.Rollback()

	if _, ok := s.GetLatestVersion([]byte("k")); ok {
		t.Error("rolled-back write should never reach storage")
	}
	if txn.IsActive() {
		t.Error("txn should be inactive after rollback")
	}
}

func TestDeleteThenCommitTombstones(t *testing.T) {
	o, s := newHarness()

	t1 := NewTxn(o, s, nil)
	t1.Begin(ReadWrite)
	t1.Write([]byte("k"), []byte("v1"))
	t1.Commit()

	t2 := NewTxn(o, s, nil)
	t2.Begin(ReadWrite)
	t2.Delete([]byte("k"))
	commitTS, err := t2.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, ok := s.GetSnapshotVersion([]byte("k"), commitTS); ok {
		t.Error("key should be invisible at a snapshot taken after its deletion commits")
	}
}
