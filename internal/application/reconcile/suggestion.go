// Package reconcile contains the application services that turn observed
// payments into posted double-entry verifications: suggestion generation,
// bulk approval and the reconciliation driver.
package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// AmountPair carries a suggested amount in both boundary encodings: the
// exact decimal and the equivalent integer count of minor units. Clients
// that cannot represent decimals safely use the cents encoding; the two
// must always agree.
type AmountPair struct {
	Decimal decimal.Decimal `json:"decimal"`
	Cents   int64           `json:"cents"`
}

// NewAmountPair derives both encodings from a monetary amount
func NewAmountPair(m valueobject.Money) AmountPair {
	rounded := m.RoundMinor()
	return AmountPair{
		Decimal: rounded.Amount(),
		Cents:   rounded.MinorUnits(),
	}
}

// AccountRef references a ledger account by number. ID is nil when the
// number could not be resolved in the accounting period; an unresolved
// account degrades the suggestion instead of failing it.
type AccountRef struct {
	ID     *uuid.UUID `json:"id,omitempty"`
	Number string     `json:"number"`
}

// SuggestedTransaction is one proposed verification line
type SuggestedTransaction struct {
	Account AccountRef `json:"account"`
	Amount  AmountPair `json:"amount"`
	Text    string     `json:"text"`
}

// VerificationSuggestion is a proposed verification for a payment. It is
// advisory until approved: an invalid suggestion is presented for manual
// completion, never posted.
type VerificationSuggestion struct {
	PaymentID          uuid.UUID              `json:"payment_id"`
	MatchedPurchaseID  *uuid.UUID             `json:"matched_purchase_id,omitempty"`
	TransactionDate    time.Time              `json:"transaction_date"`
	AccountingPeriodID uuid.UUID              `json:"accounting_period_id"`
	SeriesID           *uuid.UUID             `json:"series_id,omitempty"`
	SeriesName         string                 `json:"series_name,omitempty"`
	Transactions       []SuggestedTransaction `json:"transactions"`
	Balanced           bool                   `json:"balanced"`
	Valid              bool                   `json:"valid"`
	MissingAccounts    []string               `json:"missing_accounts,omitempty"`
	HasProvider        bool                   `json:"has_provider"`
}

// Sum returns the signed sum of the suggested line amounts
func (s *VerificationSuggestion) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range s.Transactions {
		sum = sum.Add(tx.Amount.Decimal)
	}
	return sum
}

// TransactionLines converts the suggestion into postable verification
// lines. Only valid suggestions convert: a line without a resolved
// account cannot be posted.
func (s *VerificationSuggestion) TransactionLines() ([]ledger.TransactionLine, error) {
	if !s.Valid {
		return nil, shared.NewDomainError("INVALID_SUGGESTION", "Only valid suggestions can be posted")
	}
	lines := make([]ledger.TransactionLine, 0, len(s.Transactions))
	for _, tx := range s.Transactions {
		if tx.Account.ID == nil {
			return nil, fmt.Errorf("unresolved account %s on valid suggestion", tx.Account.Number)
		}
		lines = append(lines, ledger.TransactionLine{
			AccountID: *tx.Account.ID,
			Amount:    valueobject.NewMoneySEK(tx.Amount.Decimal),
			Text:      tx.Text,
		})
	}
	return lines, nil
}
