// Package store provides the durable record store behind the Covenant
// engine: a flat key/value surface with whole-record writes, plus the
// monotonic per-kind identifier allocator.
//
// Keys are composite (entity kind + numeric id) or singleton (admin,
// counters, reentrancy flag). The store never infers relationships between
// records; cross-entity consistency belongs to the workflow layer.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// Store is the durable key/value surface consumed by the engine. All
// writes are whole-record overwrites committed synchronously within the
// calling operation.
type Store interface {
	// Get returns the value for key; the bool is false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Singleton keys.
const (
	KeyAdmin = "admin"
	KeyGuard = "reentry"
)

// RecordKey builds the composite key for an entity record.
func RecordKey(kind contracts.EntityKind, id uint64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

// CounterKey builds the singleton key for a kind's id counter.
func CounterKey(kind contracts.EntityKind) string {
	return fmt.Sprintf("%s_count", kind)
}

// HistoryKey builds the key for a party's transaction history index.
func HistoryKey(party contracts.Party) string {
	return fmt.Sprintf("hist/%s", party)
}

// Memory is an in-process Store for tests and single-process hosts.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
