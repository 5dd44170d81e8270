package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEntity(t *testing.T) {
	entity := NewBaseEntity()

	assert.NotEqual(t, uuid.Nil, entity.ID)
	assert.False(t, entity.CreatedAt.IsZero())
	assert.Equal(t, entity.CreatedAt, entity.UpdatedAt)
}

func TestNewBaseAggregateRoot(t *testing.T) {
	root := NewBaseAggregateRoot()

	assert.NotEqual(t, uuid.Nil, root.ID)
	assert.Equal(t, 1, root.GetVersion())

	root.IncrementVersion()
	assert.Equal(t, 2, root.GetVersion())

	event := NewBaseDomainEvent("thing.changed", "thing", root.ID, uuid.New())
	root.AddDomainEvent(&event)
	assert.Len(t, root.GetDomainEvents(), 1)

	root.ClearDomainEvents()
	assert.Empty(t, root.GetDomainEvents())
}
