package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// ProductRepository provides access to catalog products
type ProductRepository interface {
	shared.OrgRepository[Product]

	// FindActiveByOrg returns all non-archived products for an organization
	FindActiveByOrg(ctx context.Context, orgID uuid.UUID) ([]Product, error)
}
