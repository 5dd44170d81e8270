package purchase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// PurchaseRepository provides access to purchases, invoices and credit
// notes
type PurchaseRepository interface {
	shared.OrgRepository[Purchase]

	// FindByOCR matches an incoming payment reference to a purchase.
	// Returns (nil, nil) when no purchase carries the reference; an
	// unmatched payment is a resolution failure for the caller to degrade
	// on, not an error.
	FindByOCR(ctx context.Context, orgID uuid.UUID, ocr string) (*Purchase, error)

	// FindUnpaidExpiredBefore returns unpaid invoices whose expiry date
	// has passed, for reminder processing
	FindUnpaidExpiredBefore(ctx context.Context, orgID uuid.UUID, before time.Time) ([]Purchase, error)
}
