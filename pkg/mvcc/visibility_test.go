package mvcc

import "testing"

func snap(txnID, startTS uint64, activeIDs ...uint64) Snapshot {
	set := make(map[uint64]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		set[id] = struct{}{}
	}
	return Snapshot{TxnID: txnID, StartTS: startTS, ActiveSet: set}
}

func TestBasicVisibility(t *testing.T) {
	s := snap(10, 10)
	if !IsVisible(Version{BeginTS: 5}, s) {
		t.Error("version created before snapshot should be visible")
	}
	if IsVisible(Version{BeginTS: 15}, s) {
		t.Error("version created after snapshot should not be visible")
	}
}

func TestDeletedVersionVisibility(t *testing.T) {
	s := snap(10, 10)
	if IsVisible(Version{BeginTS: 5, EndTS: 8, HasEnd: true}, s) {
		t.Error("deleted before snapshot should not be visible")
	}
	if !IsVisible(Version{BeginTS: 5, EndTS: 12, HasEnd: true}, s) {
		t.Error("deleted after snapshot should be visible")
	}
}

func TestReadYourOwnWrites(t *testing.T) {
	s := snap(10, 10)
	if !IsVisible(Version{BeginTS: 10}, s) {
		t.Error("own write should always be visible")
	}
	if !IsVisible(Version{BeginTS: 10, EndTS: 10, HasEnd: true}, s) {
		t.Error("own deleted write should still be visible (uncommitted)")
	}
}

func TestConcurrentTransactionInvisible(t *testing.T) {
	s := snap(10, 10, 5)
	if IsVisible(Version{BeginTS: 5}, s) {
		t.Error("version from a concurrent (still-active) txn should not be visible")
	}
	if !IsVisible(Version{BeginTS: 3}, s) {
		t.Error("version from an already-committed txn should be visible")
	}
}

func TestExactSnapshotBoundary(t *testing.T) {
	s := snap(10, 10)
	if !IsVisible(Version{BeginTS: 10}, s) {
		t.Error("begin_ts == snapshot_ts should be visible")
	}
	if IsVisible(Version{BeginTS: 5, EndTS: 10, HasEnd: true}, s) {
		t.Error("end_ts == snapshot_ts should not be visible")
	}
}

func TestFindVisiblePicksNewestVisible(t *testing.T) {
	s := snap(10, 10)
	versions := []Version{
		{Value: []byte("v3"), BeginTS: 15},
		{Value: []byte("v2"), BeginTS: 8},
		{Value: []byte("v1"), BeginTS: 3},
	}
	got, ok := FindVisible(versions, s)
	if !ok || string(got) != "v2" {
		t.Fatalf("FindVisible = %q, %v; want v2, true", got, ok)
	}
}
