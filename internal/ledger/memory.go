package ledger

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps every table in process memory. Updates are serialized and
// buffered, so a failing update leaves no trace.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string][]byte)}
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errStoreClosed
	}
	return fn(&memTx{m: m, readOnly: true})
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	tx := &memTx{m: m, pending: make(map[string]map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memTx struct {
	m        *Memory
	readOnly bool
	// pending holds buffered writes; a nil value marks a delete.
	pending map[string]map[string][]byte
}

func (t *memTx) Get(table, key string) ([]byte, error) {
	if err := validateKey(table, key); err != nil {
		return nil, err
	}
	if writes, ok := t.pending[table]; ok {
		if v, ok := writes[key]; ok {
			if v == nil {
				return nil, ErrNotFound
			}
			return clone(v), nil
		}
	}
	v, ok := t.m.tables[table][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (t *memTx) Put(table, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := validateKey(table, key); err != nil {
		return err
	}
	t.buffer(table)[key] = clone(value)
	return nil
}

func (t *memTx) Delete(table, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := validateKey(table, key); err != nil {
		return err
	}
	t.buffer(table)[key] = nil
	return nil
}

func (t *memTx) Keys(table string) ([]string, error) {
	seen := make(map[string]bool)
	for k := range t.m.tables[table] {
		seen[k] = true
	}
	for k, v := range t.pending[table] {
		seen[k] = v != nil
	}
	keys := make([]string, 0, len(seen))
	for k, live := range seen {
		if live {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *memTx) buffer(table string) map[string][]byte {
	writes, ok := t.pending[table]
	if !ok {
		writes = make(map[string][]byte)
		t.pending[table] = writes
	}
	return writes
}

func (t *memTx) commit() {
	for table, writes := range t.pending {
		dst, ok := t.m.tables[table]
		if !ok {
			dst = make(map[string][]byte)
			t.m.tables[table] = dst
		}
		for k, v := range writes {
			if v == nil {
				delete(dst, k)
				continue
			}
			dst[k] = v
		}
	}
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
