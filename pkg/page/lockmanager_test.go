package page

import (
	"testing"
	"time"
)

func TestLockManagerSharedSharedCompatible(t *testing.T) {
	lm := NewLockManager(time.Second)
	if err := lm.Acquire(1, 10, Shared); err != nil {
		t.Fatalf("txn1 acquire shared: %v", err)
	}
	if err := lm.Acquire(2, 10, Shared); err != nil {
		t.Fatalf("txn2 acquire shared: %v", err)
	}
}

func TestLockManagerExclusiveExcludesOthers(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	if err := lm.Acquire(1, 10, Exclusive); err != nil {
		t.Fatalf("txn1 acquire exclusive: %v", err)
	}
	if err := lm.Acquire(2, 10, Shared); err == nil {
		t.Fatal("expected timeout acquiring shared lock held exclusively by another txn")
	}
}

func TestLockManagerReentryIsNoop(t *testing.T) {
	lm := NewLockManager(time.Second)
	if err := lm.Acquire(1, 10, Exclusive); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lm.Acquire(1, 10, Exclusive); err != nil {
		t.Fatalf("re-entrant acquire should be a no-op: %v", err)
	}
}

func TestLockManagerReleaseUnblocksWaiter(t *testing.T) {
	lm := NewLockManager(time.Second)
	if err := lm.Acquire(1, 10, Exclusive); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- lm.Acquire(2, 10, Exclusive)
	}()

	time.Sleep(20 * time.Millisecond)
	lm.Release(1, 10)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("txn2 acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("txn2 never unblocked after release")
	}
}

func TestLockManagerDeadlockDetected(t *testing.T) {
	lm := NewLockManager(time.Second)
	if err := lm.Acquire(1, 10, Exclusive); err != nil {
		t.Fatalf("txn1 acquire page10: %v", err)
	}
	if err := lm.Acquire(2, 20, Exclusive); err != nil {
		t.Fatalf("txn2 acquire page20: %v", err)
	}

	go lm.Acquire(1, 20, Exclusive) // txn1 waits on txn2
	time.Sleep(20 * time.Millisecond)

	// txn2 now requests page10, held by txn1, which is waiting on txn2: a cycle.
	err := lm.Acquire(2, 10, Exclusive)
	if err == nil {
		t.Fatal("expected deadlock error")
	}
}

func TestLockManagerReleaseAll(t *testing.T) {
	lm := NewLockManager(time.Second)
	lm.Acquire(1, 10, Shared)
	lm.Acquire(1, 20, Exclusive)
	lm.ReleaseAll(1)

	if err := lm.Acquire(2, 10, Exclusive); err != nil {
		t.Fatalf("expected page 10 free after ReleaseAll: %v", err)
	}
	if err := lm.Acquire(2, 20, Exclusive); err != nil {
		t.Fatalf("expected page 20 free after ReleaseAll: %v", err)
	}
}
