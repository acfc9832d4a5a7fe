package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// Allocator issues unique, monotonically increasing identifiers per
// entity kind. Counters live in the backing store, so identifiers never
// repeat across restarts. Counters are never decremented: an operation
// that fails after allocation leaves a gap, which callers must accept.
type Allocator struct {
	store Store
}

// NewAllocator creates an allocator over s.
func NewAllocator(s Store) *Allocator {
	return &Allocator{store: s}
}

// Next returns the next identifier for kind. The first identifier issued
// for any kind is 1; zero is never returned.
func (a *Allocator) Next(ctx context.Context, kind contracts.EntityKind) (uint64, error) {
	key := CounterKey(kind)
	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	var current uint64
	if ok {
		current, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter %s: %w", key, err)
		}
	}
	next := current + 1
	if err := a.store.Set(ctx, key, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("persist counter %s: %w", key, err)
	}
	return next, nil
}
