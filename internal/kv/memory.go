package kv

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process [Store]. It copies values on the way in and out.
//
// Tests use [Memory.FailGets] and [Memory.FailSets] to simulate a broken
// backend, e.g. a quota-exceeded write.
type Memory struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	getHits int
	setHits int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements [Store].
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.getHits++

	if m.getErr != nil {
		return nil, unavailable("get", key, m.getErr)
	}

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	return slices.Clone(v), nil
}

// Set implements [Store].
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set", key, err)
	}

	if err := ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.setHits++

	if m.setErr != nil {
		return unavailable("set", key, m.setErr)
	}

	m.data[key] = slices.Clone(value)

	return nil
}

// FailGets makes every Get fail with err. Pass nil to recover.
func (m *Memory) FailGets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getErr = err
}

// FailSets makes every Set fail with err. Pass nil to recover.
func (m *Memory) FailSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setErr = err
}

// Calls returns how many Get and Set calls the store has seen.
func (m *Memory) Calls() (gets, sets int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getHits, m.setHits
}

var _ Store = (*Memory)(nil)
