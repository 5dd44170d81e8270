package payment

import (
	"strings"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// PaymentProvider identifies where a channel's money lands in the ledger:
// the receiving account, the cash account for cash tenders, the fee
// account for processing fees, and the verification series suggestions
// are posted under.
type PaymentProvider struct {
	shared.OrgAggregateRoot
	Name              string  `gorm:"type:varchar(100);not null"`
	Channel           Channel `gorm:"type:varchar(20);not null;index"`
	AccountNumber     string  `gorm:"type:varchar(10)"`
	CashAccountNumber string  `gorm:"type:varchar(10)"`
	FeeAccountNumber  string  `gorm:"type:varchar(10)"`
	SeriesName        string  `gorm:"type:varchar(10)"`
}

// TableName returns the table name for GORM
func (PaymentProvider) TableName() string {
	return "payment_providers"
}

// NewPaymentProvider creates a new payment provider
func NewPaymentProvider(orgID uuid.UUID, name string, channel Channel) (*PaymentProvider, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_PROVIDER_NAME", "Provider name cannot be empty")
	}
	if !channel.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL", "Unknown payment channel")
	}
	return &PaymentProvider{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Name:             name,
		Channel:          channel,
	}, nil
}

// Configure sets the provider's ledger accounts and series
func (p *PaymentProvider) Configure(account, cashAccount, feeAccount, series string) {
	p.AccountNumber = account
	p.CashAccountNumber = cashAccount
	p.FeeAccountNumber = feeAccount
	p.SeriesName = series
	p.IncrementVersion()
}

// ReceivingAccount returns the account for the given tender type
func (p *PaymentProvider) ReceivingAccount(tender TenderType) string {
	if tender == TenderCash && p.CashAccountNumber != "" {
		return p.CashAccountNumber
	}
	return p.AccountNumber
}
