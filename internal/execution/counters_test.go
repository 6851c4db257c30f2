package execution

import (
	"sync"
	"testing"
)

func TestRetryCounterStore_IncrementAndClear(t *testing.T) {
	store := NewRetryCounterStore()

	if got := store.Increment(1); got != 1 {
		t.Fatalf("first increment = %d, want 1", got)
	}
	if got := store.Increment(1); got != 2 {
		t.Fatalf("second increment = %d, want 2", got)
	}
	if got := store.Attempts(1); got != 2 {
		t.Fatalf("Attempts = %d, want 2", got)
	}
	if got := store.Attempts(2); got != 0 {
		t.Fatalf("untouched id should have 0 attempts, got %d", got)
	}

	store.Clear(1, 2)
	if got := store.Attempts(1); got != 0 {
		t.Fatalf("Attempts after clear = %d, want 0", got)
	}

	// 重复清除是空操作。
	store.Clear(1, 2)
	if store.Size() != 0 {
		t.Fatalf("expected empty store, size=%d", store.Size())
	}
}

func TestRetryCounterStore_ConcurrentAccess(t *testing.T) {
	store := NewRetryCounterStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Increment(42)
			}
		}()
	}
	wg.Wait()

	if got := store.Attempts(42); got != 800 {
		t.Fatalf("concurrent increments lost updates: got %d, want 800", got)
	}

	store.Clear(42)
	if store.Size() != 0 {
		t.Fatalf("expected empty store after clear, size=%d", store.Size())
	}
}
