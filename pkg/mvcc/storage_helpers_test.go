package mvcc

import "testing"

func TestInsertAndGetLatestVersion(t *testing.T) {
	s := NewStorage(&memStore{}, nil)
	s.InsertVersion([]byte("k1"), []byte("v1"), 5)

	v, ok := s.GetLatestVersion([]byte("k1"))
	if !ok || string(v.Value) != "v1" || v.BeginTS != 5 {
		t.Fatalf("GetLatestVersion = %+v, %v; want v1/begin_ts=5", v, ok)
	}
}

func TestInsertOverwritesLatestIndex(t *testing.T) {
	s := NewStorage(&memStore{}, nil)
	s.InsertVersion([]byte("k1"), []byte("v1"), 5)
	s.InsertVersion([]byte("k1"), []byte("v2"), 9)

	v, ok := s.GetLatestVersion([]byte("k1"))
	if !ok || string(v.Value) != "v2" || v.BeginTS != 9 {
		t.Fatalf("GetLatestVersion after second write = %+v, %v; want v2/begin_ts=9", v, ok)
	}
}

func TestGetSnapshotVersionRespectsVisibility(t *testing.T) {
	s := NewStorage(&memStore{}, nil)
	s.InsertVersion([]byte("k1"), []byte("v1"), 5)
	s.InsertVersion([]byte("k1"), []byte("v2"), 15)

	got, ok := s.GetSnapshotVersion([]byte("k1"), 10)
	if !ok || string(got) != "v1" {
		t.Fatalf("snapshot at ts=10 should see v1 (begin_ts=5), got %q, %v", got, ok)
	}

	got, ok = s.GetSnapshotVersion([]byte("k1"), 20)
	if !ok || string(got) != "v2" {
		t.Fatalf("snapshot at ts=20 should see v2 (begin_ts=15), got %q, %v", got, ok)
	}
}

func TestDeleteVersionMarksEnded(t *testing.T) {
	s := NewStorage(&memStore{}, nil)
	s.InsertVersion([]byte("k1"), []byte("v1"), 5)

	if err := s.DeleteVersion([]byte("k1"), 9); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}

	if _, ok := s.GetSnapshotVersion([]byte("k1"), 10); ok {
		t.Error("version deleted before snapshot_ts should not be visible")
	}
	if got, ok := s.GetSnapshotVersion([]byte("k1"), 7); !ok || string(got) != "v1" {
		t.Errorf("version should still be visible before its end_ts: got %q, %v", got, ok)
	}
}

func TestInsertVersionBatch(t *testing.T) {
	s := NewStorage(&memStore{}, nil)
	s.InsertVersionBatch([]VersionEntry{
		{Key: []byte("a"), Value: []byte("va"), TxnID: 1},
		{Key: []byte("b"), Value: []byte("vb"), TxnID: 1},
	})

	for _, k := range []string{"a", "b"} {
		if _, ok := s.GetLatestVersion([]byte(k)); !ok {
			t.Errorf("key %q missing after batch insert", k)
		}
	}
}

func TestMultipleKeysDoNotCrossContaminatePrefixScan(t *testing.T) {
	s := NewStorage(&memStore{}, nil)
	s.InsertVersion([]byte("aa"), []byte("va"), 1)
	s.InsertVersion([]byte("ab"), []byte("vb"), 1)

	got, ok := s.GetSnapshotVersion([]byte("aa"), 10)
	if !ok || string(got) != "va" {
		t.Fatalf("GetSnapshotVersion(aa) = %q, %v; want va, true", got, ok)
	}
}
