package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// PaymentRepository provides access to payments
type PaymentRepository interface {
	shared.OrgRepository[Payment]

	// FindUnapproved returns payments not yet posted to the ledger, in
	// transaction date order
	FindUnapproved(ctx context.Context, orgID uuid.UUID) ([]Payment, error)

	// FindByDedupKey resolves an imported payment by its persisted
	// channel key. Returns (nil, nil) when the key has not been seen.
	FindByDedupKey(ctx context.Context, orgID uuid.UUID, key string) (*Payment, error)
}

// ProviderRepository provides access to payment providers
type ProviderRepository interface {
	shared.OrgRepository[PaymentProvider]

	// FindByChannel resolves the organization's provider for a channel.
	// Returns (nil, nil) when none is configured; a missing provider
	// degrades the suggestion, it is not an error.
	FindByChannel(ctx context.Context, orgID uuid.UUID, channel Channel) (*PaymentProvider, error)
}
