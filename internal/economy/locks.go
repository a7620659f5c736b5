package economy

import (
	"sort"
	"strconv"
	"sync"
)

// lockClass fixes the global acquisition order across entity types.
type lockClass int

const (
	classAccount lockClass = iota
	classCase
	classPromo
	classStock
	classWithdrawal
	classSettings
	classOutbox
)

type lockKey struct {
	class lockClass
	key   string
}

func accountLock(id int64) lockKey     { return lockKey{classAccount, strconv.FormatInt(id, 10)} }
func caseLock(id string) lockKey       { return lockKey{classCase, id} }
func promoLock(code string) lockKey    { return lockKey{classPromo, code} }
func stockLock(symbol string) lockKey  { return lockKey{classStock, symbol} }
func withdrawalLock(id string) lockKey { return lockKey{classWithdrawal, id} }
func settingsLock() lockKey            { return lockKey{classSettings, settingsKey} }
func outboxLock(id string) lockKey     { return lockKey{classOutbox, id} }

// lockTable hands out per-entity mutexes. Entries are refcounted and dropped
// once no goroutine holds or waits on them.
type lockTable struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[lockKey]*lockEntry)}
}

// acquire locks keys in global order and returns the matching release.
func (t *lockTable) acquire(keys ...lockKey) func() {
	ordered := sortLockKeys(keys)
	held := make([]*lockEntry, 0, len(ordered))
	for _, k := range ordered {
		e := t.ref(k)
		e.mu.Lock()
		held = append(held, e)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			t.unref(ordered[i])
		}
	}
}

func (t *lockTable) ref(k lockKey) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[k]
	if !ok {
		e = &lockEntry{}
		t.entries[k] = e
	}
	e.refs++
	return e
}

func (t *lockTable) unref(k lockKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[k]
	e.refs--
	if e.refs == 0 {
		delete(t.entries, k)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func sortLockKeys(keys []lockKey) []lockKey {
	out := make([]lockKey, 0, len(keys))
	seen := make(map[lockKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].class != out[j].class {
			return out[i].class < out[j].class
		}
		return out[i].key < out[j].key
	})
	return out
}
