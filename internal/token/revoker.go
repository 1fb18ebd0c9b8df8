package token

import (
	"context"
	"sync"
	"time"
)

// Revoker records refresh token issuance ids that must never be honored
// again. Entries only ever move from absent to present; expiry of the
// underlying token bounds how long an entry has to be kept.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevoker is a process-local Revoker for tests and single-node runs.
type MemoryRevoker struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

var _ Revoker = (*MemoryRevoker)(nil)

// NewMemoryRevoker returns an empty in-memory revocation set.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{entries: make(map[string]time.Time)}
}

// Revoke marks the id revoked until its token would have expired anyway.
func (r *MemoryRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tokenID] = time.Now().Add(ttl)
	r.pruneLocked()
	return nil
}

// IsRevoked reports whether the id is in the set.
func (r *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deadline, ok := r.entries[tokenID]
	return ok && time.Now().Before(deadline), nil
}

func (r *MemoryRevoker) pruneLocked() {
	now := time.Now()
	for id, deadline := range r.entries {
		if now.After(deadline) {
			delete(r.entries, id)
		}
	}
}
