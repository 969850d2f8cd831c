package rmi

import "testing"

func TestSegmentCountByDataSize(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{100, 4},
		{100_000, 4},
		{100_001, 8},
		{1_000_000, 8},
		{1_000_001, 16},
	}
	for _, c := range cases {
		if got := segmentCountFor(c.n); got != c.want {
			t.Errorf("segmentCountFor(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestSearchExactKeysAfterTrain(t *testing.T) {
	ix := New(1000, nil)
	var keys []int64
	var positions []int
	for i := 0; i < 1000; i++ {
		keys = append(keys, int64(i*10))
		positions = append(positions, i)
	}
	ix.BatchInsert(keys, positions)
	ix.Retrain()

	for i := 0; i < 1000; i++ {
		pos, ok := ix.Search(int64(i * 10))
		if !ok || pos != i {
			t.Fatalf("Search(%d) = %d, %v; want %d, true", i*10, pos, ok, i)
		}
	}

	if _, ok := ix.Search(5); ok {
		t.Error("Search(5) should miss: 5 was never inserted")
	}
}

func TestRangeSearchReturnsExpectedPositions(t *testing.T) {
	ix := New(1000, nil)
	var keys []int64
	var positions []int
	for i := 0; i < 1000; i++ {
		keys = append(keys, int64(i*10))
		positions = append(positions, i)
	}
	ix.BatchInsert(keys, positions)
	ix.Retrain()

	got := ix.RangeSearch(45, 55)
	want := map[int]bool{5: true}
	if len(got) != len(want) {
		t.Fatalf("RangeSearch(45,55) = %v, want positions {5}", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected position %d in range result", p)
		}
	}
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	ix := New(10, nil)
	ix.Insert(5, 0)
	ix.Insert(5, 99)
	ix.Retrain()

	pos, ok := ix.Search(5)
	if !ok || pos != 99 {
		t.Fatalf("Search(5) = %d, %v; want 99, true (overwrite)", pos, ok)
	}
	if ix.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (overwrite must not grow the array)", ix.Len())
	}
}

func TestSearchFallsBackToBinarySearchWhenDirty(t *testing.T) {
	ix := New(10, nil)
	for i := 0; i < 20; i++ {
		ix.Insert(int64(i), i)
	}
	// No Retrain() call: needsRetrain stays true, forcing the binary-search path.
	if !ix.NeedsRetrain() {
		t.Fatal("expected needsRetrain to be true before any Retrain call")
	}
	pos, ok := ix.Search(13)
	if !ok || pos != 13 {
		t.Fatalf("Search(13) = %d, %v; want 13, true", pos, ok)
	}
}

func TestAutomaticRetrainAfterInterval(t *testing.T) {
	ix := New(10, nil)
	for i := 0; i < RetrainInterval; i++ {
		ix.Insert(int64(i), i)
	}
	if ix.NeedsRetrain() {
		t.Error("expected automatic retrain to have fired at RetrainInterval inserts")
	}
}

func TestEmptyIndexSearchMisses(t *testing.T) {
	ix := New(0, nil)
	if _, ok := ix.Search(1); ok {
		t.Error("Search on empty index should miss")
	}
	if got := ix.RangeSearch(0, 100); got != nil {
		t.Errorf("RangeSearch on empty index = %v, want nil", got)
	}
}

func TestBatchInsertHandlesUnsortedInput(t *testing.T) {
	ix := New(5, nil)
	ix.BatchInsert([]int64{5, 1, 3, 2, 4}, []int{50, 10, 30, 20, 40})
	ix.Retrain()
	for k := int64(1); k <= 5; k++ {
		pos, ok := ix.Search(k)
		if !ok || pos != int(k)*10 {
			t.Errorf("Search(%d) = %d, %v; want %d, true", k, pos, ok, k*10)
		}
	}
}
