package purchase

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// ItemVat carries the VAT details resolved from a product's VAT account
// in the purchase's accounting period.
type ItemVat struct {
	AccountNumber string
	Code          string
	Percentage    decimal.Decimal
}

// PurchaseItem is one line of a purchase. It either references a catalog
// product, inheriting its price and accounting-rule split, or is a
// product-less line that must supply price and name itself. Quantity is
// signed: credit notes mirror their target's items with negated
// quantities.
type PurchaseItem struct {
	shared.BaseEntity
	PurchaseID      uuid.UUID                `gorm:"type:uuid;not null;index"`
	ProductID       *uuid.UUID               `gorm:"type:uuid;index"`
	Name            string                   `gorm:"type:varchar(200);not null"`
	Price           decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	Quantity        int64                    `gorm:"not null;default:1"`
	Total           decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	AccountingRules []catalog.AccountingRule `gorm:"serializer:json"`
	VatAccount      string                   `gorm:"type:varchar(10)"`
	VatCode         string                   `gorm:"type:varchar(10)"`
	VatPercentage   *decimal.Decimal         `gorm:"type:decimal(5,2)"`
	TotalVat        decimal.Decimal          `gorm:"type:decimal(18,2);not null;default:0"`
	MakeTicket      bool                     `gorm:"not null;default:false"`
	Tickets         []Ticket                 `gorm:"foreignKey:PurchaseItemID"`
}

// TableName returns the table name for GORM
func (PurchaseItem) TableName() string {
	return "purchase_items"
}

// NewItemFromProduct creates a purchase item from a catalog product. The
// unit price is the product's derived gross price; vat may be nil when the
// product has no VAT account or it could not be resolved.
func NewItemFromProduct(product *catalog.Product, quantity int64, vat *ItemVat) (*PurchaseItem, error) {
	if quantity == 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Item quantity cannot be zero")
	}

	item := &PurchaseItem{
		BaseEntity:      shared.NewBaseEntity(),
		ProductID:       &product.ID,
		Name:            product.Name,
		Quantity:        quantity,
		AccountingRules: product.AccountingRules,
		VatAccount:      product.VatAccount,
		MakeTicket:      product.MakeTicket,
		TotalVat:        decimal.Zero,
	}

	var pct *decimal.Decimal
	if vat != nil {
		item.VatCode = vat.Code
		p := vat.Percentage
		pct = &p
		item.VatPercentage = pct
	}

	price := product.GrossPrice(pct)
	item.Price = price.RoundMinor().Amount()

	if pct != nil {
		unitVat := product.NetAmount().CalculatePercentage(*pct)
		item.TotalVat = unitVat.MultiplyByInt(quantity).Amount()
	}

	item.Total = item.Price.Mul(decimal.NewFromInt(quantity))

	return item, nil
}

// NewCustomItem creates a product-less purchase item. Price and name must
// be supplied since there is no product to inherit them from.
func NewCustomItem(name string, price valueobject.Money, quantity int64, rules []catalog.AccountingRule) (*PurchaseItem, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_ITEM_NAME", "Item without a product must have a name")
	}
	if quantity == 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Item quantity cannot be zero")
	}

	p := price.RoundMinor().Amount()
	return &PurchaseItem{
		BaseEntity:      shared.NewBaseEntity(),
		Name:            name,
		Price:           p,
		Quantity:        quantity,
		Total:           p.Mul(decimal.NewFromInt(quantity)),
		AccountingRules: rules,
		TotalVat:        decimal.Zero,
	}, nil
}

// VerifyTotal checks the stored total against price times quantity.
// A mismatch is a domain-rule violation, rejected before anything is
// persisted.
func (i *PurchaseItem) VerifyTotal() error {
	expected := i.Price.Mul(decimal.NewFromInt(i.Quantity))
	if !i.Total.Equal(expected) {
		return shared.ErrTotalMismatch
	}
	return nil
}

// TotalMoney returns the item total as Money
func (i *PurchaseItem) TotalMoney() valueobject.Money {
	return valueobject.NewMoneySEK(i.Total)
}

// HasVat reports whether the item carries a VAT percentage
func (i *PurchaseItem) HasVat() bool {
	return i.VatPercentage != nil
}

// mirrored returns a copy of the item with negated quantity, total and
// VAT, for use on a credit note
func (i *PurchaseItem) mirrored() PurchaseItem {
	return PurchaseItem{
		BaseEntity:      shared.NewBaseEntity(),
		ProductID:       i.ProductID,
		Name:            i.Name,
		Price:           i.Price,
		Quantity:        -i.Quantity,
		Total:           i.Total.Neg(),
		AccountingRules: i.AccountingRules,
		VatAccount:      i.VatAccount,
		VatCode:         i.VatCode,
		VatPercentage:   i.VatPercentage,
		TotalVat:        i.TotalVat.Neg(),
	}
}
