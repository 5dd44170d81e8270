package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// AccountRepository provides access to ledger accounts
type AccountRepository interface {
	shared.OrgRepository[Account]

	// FindByNumber resolves an account number within an accounting period.
	// An unresolved number returns (nil, nil): missing accounts are reported,
	// never treated as a failure.
	FindByNumber(ctx context.Context, periodID uuid.UUID, number string) (*Account, error)
}

// AccountingPeriodRepository provides access to accounting periods
type AccountingPeriodRepository interface {
	shared.OrgRepository[AccountingPeriod]
}

// VerificationSeriesRepository provides access to verification series
type VerificationSeriesRepository interface {
	shared.OrgRepository[VerificationSeries]

	// FindByName resolves a series by name within an accounting period.
	// An unresolved name returns (nil, nil).
	FindByName(ctx context.Context, periodID uuid.UUID, name string) (*VerificationSeries, error)
}

// VerificationRepository provides access to posted verifications
type VerificationRepository interface {
	shared.OrgRepository[Verification]

	// FindByExternalRef looks up a verification by its external reference.
	// Returns (nil, nil) when none exists.
	FindByExternalRef(ctx context.Context, orgID uuid.UUID, externalRef string) (*Verification, error)
}

// BalanceRecalculator recomputes account balances after verifications are
// posted. Approval batches call it once per touched account after the whole
// batch, never once per line.
type BalanceRecalculator interface {
	RecalculateBalances(ctx context.Context, accountIDs []uuid.UUID) error
}
