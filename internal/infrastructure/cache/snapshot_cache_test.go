package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbooks/backend/internal/domain/catalog"
)

func TestInMemorySnapshotCache(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns what was put", func(t *testing.T) {
		cache := NewInMemorySnapshotCache(zap.NewNop())
		orgID := uuid.New()
		snapshot := &catalog.Snapshot{OrgID: orgID, BuiltAt: time.Now()}

		_, ok := cache.Get(ctx, orgID)
		assert.False(t, ok)

		cache.Put(ctx, orgID, snapshot)

		got, ok := cache.Get(ctx, orgID)
		require.True(t, ok)
		assert.Same(t, snapshot, got)
	})

	t.Run("invalidation is scoped to the organization", func(t *testing.T) {
		cache := NewInMemorySnapshotCache(zap.NewNop())
		orgA := uuid.New()
		orgB := uuid.New()
		cache.Put(ctx, orgA, &catalog.Snapshot{OrgID: orgA})
		cache.Put(ctx, orgB, &catalog.Snapshot{OrgID: orgB})

		cache.Invalidate(ctx, orgA)

		_, ok := cache.Get(ctx, orgA)
		assert.False(t, ok)
		_, ok = cache.Get(ctx, orgB)
		assert.True(t, ok)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("nil snapshot is not stored", func(t *testing.T) {
		cache := NewInMemorySnapshotCache(nil)
		orgID := uuid.New()
		cache.Put(ctx, orgID, nil)

		_, ok := cache.Get(ctx, orgID)
		assert.False(t, ok)
	})
}

func TestSnapshotInvalidationHandler(t *testing.T) {
	ctx := context.Background()

	cache := NewInMemorySnapshotCache(zap.NewNop())
	handler := NewSnapshotInvalidationHandler(cache, zap.NewNop())

	orgID := uuid.New()
	cache.Put(ctx, orgID, &catalog.Snapshot{OrgID: orgID})

	product, err := catalog.NewProduct(orgID, "Coffee", "")
	require.NoError(t, err)

	require.NoError(t, handler.Handle(ctx, catalog.NewProductUpdatedEvent(product)))

	_, ok := cache.Get(ctx, orgID)
	assert.False(t, ok, "product change drops the snapshot")

	assert.ElementsMatch(t, []string{
		catalog.EventTypeProductCreated,
		catalog.EventTypeProductUpdated,
		catalog.EventTypeProductDeleted,
	}, handler.EventTypes())
}
