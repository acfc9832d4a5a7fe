package conditions

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// MemoryApprovals is an in-process ApprovalRegistry for tests and
// single-node hosts.
type MemoryApprovals struct {
	mu       sync.RWMutex
	approved map[string]bool
}

// NewMemoryApprovals creates an empty registry.
func NewMemoryApprovals() *MemoryApprovals {
	return &MemoryApprovals{approved: make(map[string]bool)}
}

func approvalKey(validator contracts.Party, escrowID uint64) string {
	return fmt.Sprintf("%s:%d", validator, escrowID)
}

// Approve records the validator's approval of the escrow.
func (m *MemoryApprovals) Approve(validator contracts.Party, escrowID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approved[approvalKey(validator, escrowID)] = true
}

// Revoke withdraws a previously recorded approval.
func (m *MemoryApprovals) Revoke(validator contracts.Party, escrowID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.approved, approvalKey(validator, escrowID))
}

func (m *MemoryApprovals) IsApproved(_ context.Context, validator contracts.Party, escrowID uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approved[approvalKey(validator, escrowID)], nil
}

// RedisApprovals is an ApprovalRegistry backed by Redis, for deployments
// where approvals are collected by an external service.
type RedisApprovals struct {
	client *redis.Client
	prefix string
}

// NewRedisApprovals creates a registry over client. prefix namespaces the
// keys; empty selects "covenant:approval".
func NewRedisApprovals(client *redis.Client, prefix string) *RedisApprovals {
	if prefix == "" {
		prefix = "covenant:approval"
	}
	return &RedisApprovals{client: client, prefix: prefix}
}

func (r *RedisApprovals) key(validator contracts.Party, escrowID uint64) string {
	return fmt.Sprintf("%s:%s:%d", r.prefix, validator, escrowID)
}

// Approve records the validator's approval of the escrow.
func (r *RedisApprovals) Approve(ctx context.Context, validator contracts.Party, escrowID uint64) error {
	if err := r.client.Set(ctx, r.key(validator, escrowID), "1", 0).Err(); err != nil {
		return fmt.Errorf("record approval: %w", err)
	}
	return nil
}

func (r *RedisApprovals) IsApproved(ctx context.Context, validator contracts.Party, escrowID uint64) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(validator, escrowID)).Result()
	if err != nil {
		return false, fmt.Errorf("check approval: %w", err)
	}
	return n > 0, nil
}
