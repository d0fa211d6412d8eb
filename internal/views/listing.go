// Package views tracks per-user listing versions. The workflow bumps a
// user's version after committing a new song; the listing endpoint folds the
// version into its ETag, so clients polling with If-None-Match see a cache
// miss exactly when the listing actually changed.
package views

import (
	"context"
	"sync"
)

// ListVersions is an in-memory, process-local version counter per user.
// Safe for concurrent use.
type ListVersions struct {
	mu sync.RWMutex
	m  map[string]uint64
}

// NewListVersions constructs an empty version table.
func NewListVersions() *ListVersions {
	return &ListVersions{m: make(map[string]uint64)}
}

// Get returns the current listing version for userID (0 when never bumped).
func (v *ListVersions) Get(userID string) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.m[userID]
}

// Bump advances the user's listing version.
func (v *ListVersions) Bump(userID string) {
	v.mu.Lock()
	v.m[userID]++
	v.mu.Unlock()
}

// Invalidate implements the workflow's post-commit invalidation contract.
func (v *ListVersions) Invalidate(_ context.Context, userID string) error {
	v.Bump(userID)
	return nil
}
