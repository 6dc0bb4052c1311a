// --- File: internal/storage/cache/snapshotstore.go ---
// Package cache persists the single most-recent notification per account.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-client/pushclient"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// SnapshotStore keeps the last delivered notification per account so it
// survives process restarts. Only the most recent item is kept; each Save
// overwrites the previous snapshot.
type SnapshotStore struct {
	cache CacheClient
	ttl   time.Duration
}

// NewSnapshotStore creates the store. It satisfies pushclient.SnapshotStore.
func NewSnapshotStore(cache CacheClient, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		cache: cache,
		ttl:   ttl,
	}
}

// Save overwrites the snapshot for the account.
func (s *SnapshotStore) Save(ctx context.Context, accountID string, n pushclient.Notification) error {
	return s.cache.Set(ctx, s.key(accountID), n, s.ttl)
}

// Load returns the stored snapshot, or an error when none exists.
func (s *SnapshotStore) Load(ctx context.Context, accountID string) (pushclient.Notification, error) {
	var n pushclient.Notification
	if err := s.cache.Get(ctx, s.key(accountID), &n); err != nil {
		return pushclient.Notification{}, err
	}
	return n, nil
}

// Clear removes the snapshot for the account.
func (s *SnapshotStore) Clear(ctx context.Context, accountID string) error {
	return s.cache.Del(ctx, s.key(accountID))
}

func (s *SnapshotStore) key(accountID string) string {
	return fmt.Sprintf("push:last:%s", accountID)
}
