package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory document store with the same JSON contract as
// store.Store. Writes honour context cancellation and can be made to fail.
//
// Thread-safety: MemStore is safe for concurrent use.
type MemStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	writes   int
	failNext []error
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

// GetJSON decodes the document under key into v.
func (m *MemStore) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	doc, ok := m.docs[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v under key, unless a failure was queued with FailNext.
func (m *MemStore) SetJSON(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return err
	}
	m.docs[key] = data
	m.writes++
	return nil
}

// FailNext makes the next len(errs) writes fail with errs in order.
func (m *MemStore) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

// Raw returns the stored bytes for key.
func (m *MemStore) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	return doc, ok
}

// Writes returns the number of successful writes.
func (m *MemStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
