package economy

import (
	"sync"
	"testing"
)

func TestSortLockKeysOrdersByClassThenKey(t *testing.T) {
	got := sortLockKeys([]lockKey{stockLock("AAPL"), caseLock("b"), accountLock(2), caseLock("a"), accountLock(2)})
	want := []lockKey{accountLock(2), caseLock("a"), caseLock("b"), stockLock("AAPL")}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestLockTableReleasesEntries(t *testing.T) {
	table := newLockTable()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []lockKey{accountLock(1), caseLock("c")}
			if i%2 == 0 {
				keys = []lockKey{caseLock("c"), accountLock(1)}
			}
			release := table.acquire(keys...)
			counter++
			release()
		}(i)
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d", counter)
	}
	if n := table.size(); n != 0 {
		t.Fatalf("expected empty table, got %d entries", n)
	}
}
