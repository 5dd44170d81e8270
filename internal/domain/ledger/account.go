package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// AccountingPeriod represents one bookkeeping year for an organization.
// Accounts, series and verifications are all scoped to a period.
type AccountingPeriod struct {
	shared.OrgAggregateRoot
	Name  string    `gorm:"type:varchar(50);not null"`
	Start time.Time `gorm:"not null"`
	End   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountingPeriod) TableName() string {
	return "accounting_periods"
}

// NewAccountingPeriod creates a new accounting period
func NewAccountingPeriod(orgID uuid.UUID, name string, start, end time.Time) (*AccountingPeriod, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_PERIOD_NAME", "Accounting period name cannot be empty")
	}
	if !end.After(start) {
		return nil, shared.NewDomainError("INVALID_PERIOD_RANGE", "Accounting period end must be after start")
	}
	return &AccountingPeriod{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Name:             name,
		Start:            start,
		End:              end,
	}, nil
}

// Contains reports whether the given date falls inside the period
func (p *AccountingPeriod) Contains(date time.Time) bool {
	return !date.Before(p.Start) && !date.After(p.End)
}

// YearDigit returns the last digit of the period's starting year.
// The reference-number scheme appends it to every generated reference.
func (p *AccountingPeriod) YearDigit() int {
	return p.Start.Year() % 10
}

// Account represents a ledger account within an accounting period.
// It is identified by its number within the period. An account may carry
// a VAT code and percentage used when items booked against it need VAT
// amounts derived.
type Account struct {
	shared.OrgAggregateRoot
	AccountingPeriodID uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_account_period_number,priority:1"`
	Number             string           `gorm:"type:varchar(10);not null;uniqueIndex:idx_account_period_number,priority:2"`
	Name               string           `gorm:"type:varchar(200);not null"`
	VatCode            string           `gorm:"type:varchar(10)"`
	VatPercentage      *decimal.Decimal `gorm:"type:decimal(5,2)"`
	Balance            decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// NewAccount creates a new ledger account in a period
func NewAccount(orgID, periodID uuid.UUID, number, name string) (*Account, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT_NUMBER", "Account number cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT_NAME", "Account name cannot be empty")
	}
	return &Account{
		OrgAggregateRoot:   shared.NewOrgAggregateRoot(orgID),
		AccountingPeriodID: periodID,
		Number:             number,
		Name:               name,
		Balance:            decimal.Zero,
	}, nil
}

// SetVat configures the account's VAT code and percentage
func (a *Account) SetVat(code string, percentage decimal.Decimal) error {
	if percentage.IsNegative() || percentage.GreaterThan(decimal.NewFromInt(100)) {
		return shared.NewDomainError("INVALID_VAT_PERCENTAGE", "VAT percentage must be between 0 and 100")
	}
	a.VatCode = code
	a.VatPercentage = &percentage
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
	return nil
}

// HasVat reports whether the account carries a VAT percentage
func (a *Account) HasVat() bool {
	return a.VatPercentage != nil
}

// VatAmountFor computes the VAT amount for a net amount using the
// account's percentage, rounded half-up to the minor unit
func (a *Account) VatAmountFor(net valueobject.Money) valueobject.Money {
	if a.VatPercentage == nil {
		return valueobject.Zero(net.Currency())
	}
	return net.CalculatePercentage(*a.VatPercentage)
}
