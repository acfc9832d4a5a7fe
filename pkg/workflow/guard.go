package workflow

import (
	"context"
	"fmt"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/store"
)

// Guard is the process-wide reentrancy exclusion flag. It is a single
// flag in the durable store, not a per-entity lock: the host executes
// operations serially, so the guard exists to reject logical reentry
// (a callback invoking the engine while an operation is mid-flight),
// not to coordinate threads.
type Guard struct {
	store store.Store
}

// NewGuard creates a guard over s.
func NewGuard(s store.Store) *Guard {
	return &Guard{store: s}
}

// Enter sets the flag, failing with ReentrancyDetected when it is
// already set.
func (g *Guard) Enter(ctx context.Context) error {
	set, err := g.store.Has(ctx, store.KeyGuard)
	if err != nil {
		return fmt.Errorf("read guard flag: %w", err)
	}
	if set {
		return contracts.ErrReentrancyDetected
	}
	if err := g.store.Set(ctx, store.KeyGuard, []byte{1}); err != nil {
		return fmt.Errorf("set guard flag: %w", err)
	}
	return nil
}

// Leave unconditionally clears the flag. Every mutating operation leaves
// on every exit path, success or error, so a failed operation can never
// wedge the engine.
func (g *Guard) Leave(ctx context.Context) error {
	if err := g.store.Remove(ctx, store.KeyGuard); err != nil {
		return fmt.Errorf("clear guard flag: %w", err)
	}
	return nil
}
