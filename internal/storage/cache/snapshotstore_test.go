// --- File: internal/storage/cache/snapshotstore_test.go ---
package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-client/internal/storage/cache"
	"github.com/tinywideclouds/go-push-client/pushclient"
)

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	accountID := "urn:sm:user:snapshot-tester"
	cacheKey := "push:last:" + accountID

	t.Run("Save overwrites the single snapshot", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewSnapshotStore(mockCache, 1*time.Hour)

		n := pushclient.Notification{Message: "hello", Sound: "ding", IconBadgeCount: 3}
		mockCache.On("Set", ctx, cacheKey, n, 1*time.Hour).Return(nil)

		require.NoError(t, store.Save(ctx, accountID, n))
		mockCache.AssertExpectations(t)
	})

	t.Run("Load returns the stored snapshot", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewSnapshotStore(mockCache, 1*time.Hour)

		stored := pushclient.Notification{Message: "welcome back"}
		mockCache.On("Get", ctx, cacheKey, mock.Anything).Run(func(args mock.Arguments) {
			dest := args.Get(2).(*pushclient.Notification)
			*dest = stored
		}).Return(nil)

		n, err := store.Load(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, stored, n)
	})

	t.Run("Load surfaces a miss as an error", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewSnapshotStore(mockCache, 1*time.Hour)

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(assert.AnError)

		_, err := store.Load(ctx, accountID)
		assert.Error(t, err)
	})

	t.Run("Clear removes the snapshot", func(t *testing.T) {
		mockCache := new(MockCache)
		store := cache.NewSnapshotStore(mockCache, 1*time.Hour)

		mockCache.On("Del", ctx, cacheKey).Return(nil)

		require.NoError(t, store.Clear(ctx, accountID))
		mockCache.AssertExpectations(t)
	})
}
