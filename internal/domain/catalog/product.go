package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// AccountingRule is one component of a product's price decomposition:
// the given amount of every sold unit is booked against the account.
type AccountingRule struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// Product represents a sellable item in an organization's catalog.
// Its price is derived from the accounting-rule split plus VAT; it is
// never stored independently.
type Product struct {
	shared.OrgAggregateRoot
	Name            string           `gorm:"type:varchar(200);not null;index"`
	Variant         string           `gorm:"type:varchar(200)"`
	Archived        bool             `gorm:"not null;default:false"`
	AccountingRules []AccountingRule `gorm:"serializer:json"`
	VatAccount      string           `gorm:"type:varchar(10)"`
	Barcode         string           `gorm:"type:varchar(50);index"`
	CustomUnit      string           `gorm:"type:varchar(20)"`
	MakeTicket      bool             `gorm:"not null;default:false"`
	PosPrice        *decimal.Decimal `gorm:"type:decimal(18,2)"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new catalog product
func NewProduct(orgID uuid.UUID, name, variant string) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}

	product := &Product{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Name:             name,
		Variant:          variant,
	}

	product.AddDomainEvent(NewProductCreatedEvent(product))

	return product, nil
}

// Key returns the catalog lookup key: the name, with the variant in
// parentheses when one is set. Receipt descriptions refer to products
// by this key.
func (p *Product) Key() string {
	if p.Variant != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Variant)
	}
	return p.Name
}

// SetAccountingRules replaces the product's price decomposition.
// The order of the rules is preserved.
func (p *Product) SetAccountingRules(rules []AccountingRule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if strings.TrimSpace(rule.AccountNumber) == "" {
			return shared.NewDomainError("INVALID_ACCOUNTING_RULE", "Accounting rule account number cannot be empty")
		}
		if _, dup := seen[rule.AccountNumber]; dup {
			return shared.NewDomainError("INVALID_ACCOUNTING_RULE", "Duplicate account number in accounting rules")
		}
		seen[rule.AccountNumber] = struct{}{}
	}

	p.AccountingRules = rules
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductUpdatedEvent(p))

	return nil
}

// NetAmount returns the sum of the accounting-rule split, excluding VAT
func (p *Product) NetAmount() valueobject.Money {
	sum := decimal.Zero
	for _, rule := range p.AccountingRules {
		sum = sum.Add(rule.Amount)
	}
	return valueobject.NewMoneySEK(sum)
}

// GrossPrice returns the derived price: sum of the split plus VAT at the
// given percentage, rounded half-up to the minor unit. A nil percentage
// means no VAT account is configured (or it could not be resolved) and
// the net amount stands alone.
func (p *Product) GrossPrice(vatPercentage *decimal.Decimal) valueobject.Money {
	net := p.NetAmount()
	if vatPercentage == nil {
		return net
	}
	return net.MustAdd(net.CalculatePercentage(*vatPercentage))
}

// SetVatAccount sets the account number used to derive VAT for this product
func (p *Product) SetVatAccount(number string) {
	p.VatAccount = number
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductUpdatedEvent(p))
}

// SetPosPrice sets the point-of-sale price. Products whose derived price
// does not match it are excluded from point-of-sale lookups.
func (p *Product) SetPosPrice(price *decimal.Decimal) {
	p.PosPrice = price
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductUpdatedEvent(p))
}

// SetCustomUnit sets the sale unit label ("kg", "hg") shown alongside
// fractional quantities
func (p *Product) SetCustomUnit(unit string) {
	p.CustomUnit = unit
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductUpdatedEvent(p))
}

// SetMakeTicket flags whether paid purchases of this product issue tickets
func (p *Product) SetMakeTicket(makeTicket bool) {
	p.MakeTicket = makeTicket
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductUpdatedEvent(p))
}

// Update changes the product's name and variant
func (p *Product) Update(name, variant string) error {
	if strings.TrimSpace(name) == "" {
		return shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}

	p.Name = name
	p.Variant = variant
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductUpdatedEvent(p))

	return nil
}

// Archive removes the product from catalog lookups without deleting it
func (p *Product) Archive() {
	if p.Archived {
		return
	}
	p.Archived = true
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewProductDeletedEvent(p))
}
