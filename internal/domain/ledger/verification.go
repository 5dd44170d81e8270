package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// Transaction is one signed line of a verification, posted against a
// ledger account. Amounts are signed: debits positive, credits negative.
type Transaction struct {
	shared.BaseEntity
	VerificationID uuid.UUID         `gorm:"type:uuid;not null;index"`
	AccountID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	Amount         valueobject.Money `gorm:"type:decimal(18,2);not null"`
	Text           string            `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (Transaction) TableName() string {
	return "ledger_transactions"
}

// TransactionLine is the value used to build a verification before the
// lines become persisted Transaction rows.
type TransactionLine struct {
	AccountID uuid.UUID
	Amount    valueobject.Money
	Text      string
}

// Verification is a posted double-entry bookkeeping record. It is created
// once with a balanced set of lines and never edited afterwards.
type Verification struct {
	shared.OrgAggregateRoot
	AccountingPeriodID uuid.UUID     `gorm:"type:uuid;not null;index"`
	SeriesID           uuid.UUID     `gorm:"type:uuid;not null;index"`
	Number             int64         `gorm:"not null"`
	TransactionDate    time.Time     `gorm:"not null"`
	ExternalRef        string        `gorm:"type:varchar(100);index"`
	Lines              []Transaction `gorm:"foreignKey:VerificationID"`
}

// TableName returns the table name for GORM
func (Verification) TableName() string {
	return "verifications"
}

// NewVerification creates a balanced verification from transaction lines.
// The signed line amounts must sum to exactly zero; an unbalanced set is
// rejected outright, never partially applied.
func NewVerification(
	orgID, periodID, seriesID uuid.UUID,
	number int64,
	transactionDate time.Time,
	externalRef string,
	lines []TransactionLine,
) (*Verification, error) {
	if len(lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_VERIFICATION", "Verification must have at least one transaction line")
	}

	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Amount.Amount())
	}
	if !sum.IsZero() {
		return nil, shared.NewDomainError("UNBALANCED_VERIFICATION", "Transaction lines must sum to zero")
	}

	v := &Verification{
		OrgAggregateRoot:   shared.NewOrgAggregateRoot(orgID),
		AccountingPeriodID: periodID,
		SeriesID:           seriesID,
		Number:             number,
		TransactionDate:    transactionDate,
		ExternalRef:        externalRef,
	}

	for _, line := range lines {
		v.Lines = append(v.Lines, Transaction{
			BaseEntity:     shared.NewBaseEntity(),
			VerificationID: v.ID,
			AccountID:      line.AccountID,
			Amount:         line.Amount,
			Text:           line.Text,
		})
	}

	v.AddDomainEvent(NewVerificationPostedEvent(v))

	return v, nil
}

// TouchedAccountIDs returns the distinct accounts posted to by this
// verification, in first-seen order
func (v *Verification) TouchedAccountIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(v.Lines))
	var ids []uuid.UUID
	for _, line := range v.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}
