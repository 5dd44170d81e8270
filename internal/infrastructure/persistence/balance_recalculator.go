package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openbooks/backend/internal/domain/ledger"
)

// SQLBalanceRecalculator recomputes account balances from the posted
// transaction lines. Balances are derived data: the ledger rows are the
// source of truth, so a recompute is always safe to repeat.
type SQLBalanceRecalculator struct {
	db *gorm.DB
}

// NewSQLBalanceRecalculator creates a new SQLBalanceRecalculator
func NewSQLBalanceRecalculator(db *gorm.DB) *SQLBalanceRecalculator {
	return &SQLBalanceRecalculator{db: db}
}

// RecalculateBalances sets each account's balance to the sum of its
// transaction lines. Accounts without lines get a zero balance.
func (r *SQLBalanceRecalculator) RecalculateBalances(ctx context.Context, accountIDs []uuid.UUID) error {
	if len(accountIDs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Exec(`
		UPDATE accounts
		SET balance = COALESCE((
			SELECT SUM(t.amount)
			FROM ledger_transactions t
			WHERE t.account_id = accounts.id
		), 0)
		WHERE accounts.id IN ?`, accountIDs).Error
}

// Ensure SQLBalanceRecalculator implements BalanceRecalculator
var _ ledger.BalanceRecalculator = (*SQLBalanceRecalculator)(nil)
