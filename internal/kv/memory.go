package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store backed by a map per column, guarded
// by a single RWMutex. It is used by unit and integration tests the
// way the teacher's MockRepository stands in for its real repository.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Column]map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Column]map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Get(ctx context.Context, column Column, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[column][key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *MemoryStore) Put(ctx context.Context, column Column, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(column, key, value)
	return nil
}

func (m *MemoryStore) putLocked(column Column, key string, value []byte) {
	if m.data[column] == nil {
		m.data[column] = make(map[string][]byte)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[column][key] = stored
}

func (m *MemoryStore) Delete(ctx context.Context, column Column, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[column], key)
	return nil
}

func (m *MemoryStore) WriteBatch(ctx context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		switch op.Kind {
		case OpPut:
			m.putLocked(op.Column, op.Key, op.Value)
		case OpDelete:
			delete(m.data[op.Column], op.Key)
		}
	}
	return nil
}

func (m *MemoryStore) Iterate(ctx context.Context, column Column, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data[column]))
	values := make(map[string][]byte, len(m.data[column]))
	for k, v := range m.data[column] {
		keys = append(keys, k)
		values[k] = v
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
