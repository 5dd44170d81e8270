// Package cache provides caching backends for catalog snapshots and
// payment deduplication keys.
package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/shared"
)

// InMemorySnapshotCache caches one catalog snapshot per organization.
// Snapshots are rebuilt on demand after invalidation, so entries carry
// no TTL of their own.
type InMemorySnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*catalog.Snapshot
	logger    *zap.Logger
}

// NewInMemorySnapshotCache creates a new in-memory snapshot cache
func NewInMemorySnapshotCache(logger *zap.Logger) *InMemorySnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemorySnapshotCache{
		snapshots: make(map[uuid.UUID]*catalog.Snapshot),
		logger:    logger,
	}
}

// Get returns the cached snapshot for the organization, if any
func (c *InMemorySnapshotCache) Get(ctx context.Context, orgID uuid.UUID) (*catalog.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, ok := c.snapshots[orgID]
	return snapshot, ok
}

// Put stores the organization's snapshot, replacing any previous one
func (c *InMemorySnapshotCache) Put(ctx context.Context, orgID uuid.UUID, snapshot *catalog.Snapshot) {
	if snapshot == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[orgID] = snapshot
}

// Invalidate drops the organization's snapshot
func (c *InMemorySnapshotCache) Invalidate(ctx context.Context, orgID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.snapshots[orgID]; ok {
		delete(c.snapshots, orgID)
		c.logger.Debug("invalidated catalog snapshot", zap.String("org_id", orgID.String()))
	}
}

// Size returns the number of cached snapshots (for testing/monitoring)
func (c *InMemorySnapshotCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}

// Ensure InMemorySnapshotCache implements SnapshotCache
var _ catalog.SnapshotCache = (*InMemorySnapshotCache)(nil)

// SnapshotInvalidationHandler drops an organization's cached snapshot
// whenever its product catalog changes. Stale snapshots would let the
// point-of-sale importer book sales against outdated account splits.
type SnapshotInvalidationHandler struct {
	cache  catalog.SnapshotCache
	logger *zap.Logger
}

// NewSnapshotInvalidationHandler creates a handler bound to the given cache
func NewSnapshotInvalidationHandler(cache catalog.SnapshotCache, logger *zap.Logger) *SnapshotInvalidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotInvalidationHandler{cache: cache, logger: logger}
}

// Handle processes a product change event
func (h *SnapshotInvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.cache.Invalidate(ctx, event.OrgID())
	h.logger.Debug("snapshot invalidated by product change",
		zap.String("event_type", event.EventType()),
		zap.String("org_id", event.OrgID().String()),
	)
	return nil
}

// EventTypes returns the product events that trigger invalidation
func (h *SnapshotInvalidationHandler) EventTypes() []string {
	return []string{
		catalog.EventTypeProductCreated,
		catalog.EventTypeProductUpdated,
		catalog.EventTypeProductDeleted,
	}
}

// Ensure SnapshotInvalidationHandler implements EventHandler
var _ shared.EventHandler = (*SnapshotInvalidationHandler)(nil)
