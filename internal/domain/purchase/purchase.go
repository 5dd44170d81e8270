package purchase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// Kind tags the purchase variant. The set is closed: behavior differences
// between orders, invoices and credit notes dispatch on this tag.
type Kind string

const (
	KindOrder      Kind = "order"
	KindInvoice    Kind = "invoice"
	KindCreditNote Kind = "credit_note"
)

// IsValid checks if the kind is a valid Kind
func (k Kind) IsValid() bool {
	switch k {
	case KindOrder, KindInvoice, KindCreditNote:
		return true
	}
	return false
}

// String returns the string representation
func (k Kind) String() string {
	return string(k)
}

// PaymentState represents how far a purchase has been settled
type PaymentState string

const (
	PaymentStateUnpaid   PaymentState = "unpaid"
	PaymentStatePartial  PaymentState = "partial"
	PaymentStatePaid     PaymentState = "paid"
	PaymentStateCredited PaymentState = "credited"
)

// IsValid checks if the state is a valid PaymentState
func (s PaymentState) IsValid() bool {
	switch s {
	case PaymentStateUnpaid, PaymentStatePartial, PaymentStatePaid, PaymentStateCredited:
		return true
	}
	return false
}

// String returns the string representation
func (s PaymentState) String() string {
	return string(s)
}

// Rank orders the settlement states. Transitions never decrease the rank;
// credited is terminal.
func (s PaymentState) Rank() int {
	switch s {
	case PaymentStateUnpaid:
		return 0
	case PaymentStatePartial:
		return 1
	case PaymentStatePaid:
		return 2
	case PaymentStateCredited:
		return 3
	}
	return -1
}

// PaymentRef is a value reference to a settlement applied to this
// purchase. The purchase tracks references, not payment aggregates.
type PaymentRef struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// DefaultInvoiceExpiry is how long an invoice stays payable
const DefaultInvoiceExpiry = 30 * 24 * time.Hour

// Purchase is the aggregate root for orders, invoices and credit notes.
// The kind tag selects variant behavior; the lifecycle and invariants are
// shared. Once created a purchase is only ever state-transitioned, never
// destroyed.
type Purchase struct {
	shared.OrgAggregateRoot
	Kind               Kind            `gorm:"type:varchar(20);not null;index"`
	PaymentState       PaymentState    `gorm:"type:varchar(20);not null;default:'unpaid';index"`
	Currency           string          `gorm:"type:varchar(3);not null"`
	Date               time.Time       `gorm:"not null"`
	Nonce              uint32          `gorm:"not null"`
	OCR                string          `gorm:"type:varchar(30);not null;index"`
	Total              decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Cancelled          bool            `gorm:"not null;default:false"`
	Items              []PurchaseItem  `gorm:"foreignKey:PurchaseID"`
	MatchedPayments    []PaymentRef    `gorm:"serializer:json"`
	OriginalPayments   []PaymentRef    `gorm:"serializer:json"`
	CreditedPurchaseID *uuid.UUID      `gorm:"type:uuid;index"`
	BuyerName          string          `gorm:"type:varchar(200)"`
	BuyerAddress       string          `gorm:"type:varchar(500)"`
	BuyerPhone         string          `gorm:"type:varchar(50)"`
	BuyerEmail         string          `gorm:"type:varchar(200)"`
	BuyerReference     string          `gorm:"type:varchar(200)"`
	BuyerAnnotation    string          `gorm:"type:text"`
	PaymentTerms       string          `gorm:"type:varchar(200)"`
	ExtraText          string          `gorm:"type:text"`
	ExpiryDate         *time.Time      `gorm:""`
}

// TableName returns the table name for GORM
func (Purchase) TableName() string {
	return "purchases"
}

// Option configures a purchase at creation time
type Option func(*Purchase) error

// WithBuyer sets the buyer contact details
func WithBuyer(name, address, email, phone string) Option {
	return func(p *Purchase) error {
		p.BuyerName = name
		p.BuyerAddress = address
		p.BuyerEmail = email
		p.BuyerPhone = phone
		return nil
	}
}

// WithDate overrides the purchase date
func WithDate(date time.Time) Option {
	return func(p *Purchase) error {
		p.Date = date
		return nil
	}
}

// WithStatedTotal supplies an externally stated total, which must equal
// the computed item total or creation is rejected
func WithStatedTotal(total decimal.Decimal) Option {
	return func(p *Purchase) error {
		if !p.Total.Equal(total) {
			return shared.ErrTotalMismatch
		}
		return nil
	}
}

// WithPaymentTerms sets the payment terms text
func WithPaymentTerms(terms string) Option {
	return func(p *Purchase) error {
		p.PaymentTerms = terms
		return nil
	}
}

// WithExpiry overrides the invoice expiry date
func WithExpiry(expiry time.Time) Option {
	return func(p *Purchase) error {
		p.ExpiryDate = &expiry
		return nil
	}
}

// NewOrder creates a webshop order
func NewOrder(orgID uuid.UUID, currencyCode, ocr string, items []*PurchaseItem, opts ...Option) (*Purchase, error) {
	return newPurchase(KindOrder, orgID, currencyCode, ocr, items, opts...)
}

// NewInvoice creates an invoice, payable for thirty days by default
func NewInvoice(orgID uuid.UUID, currencyCode, ocr string, items []*PurchaseItem, opts ...Option) (*Purchase, error) {
	p, err := newPurchase(KindInvoice, orgID, currencyCode, ocr, items, opts...)
	if err != nil {
		return nil, err
	}
	if p.ExpiryDate == nil {
		expiry := p.Date.Add(DefaultInvoiceExpiry)
		p.ExpiryDate = &expiry
	}
	return p, nil
}

func newPurchase(kind Kind, orgID uuid.UUID, currencyCode, ocr string, items []*PurchaseItem, opts ...Option) (*Purchase, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_KIND", "Unknown purchase kind")
	}
	code, err := validateCurrency(currencyCode)
	if err != nil {
		return nil, err
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("generating purchase nonce: %w", err)
	}

	p := &Purchase{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Kind:             kind,
		PaymentState:     PaymentStateUnpaid,
		Currency:         code,
		Date:             time.Now(),
		Nonce:            nonce,
		OCR:              ocr,
		Total:            decimal.Zero,
	}

	for _, item := range items {
		if err := item.VerifyTotal(); err != nil {
			return nil, err
		}
		item.PurchaseID = p.ID
		p.Items = append(p.Items, *item)
		p.Total = p.Total.Add(item.Total)
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	// Nothing to collect: a zero total is settled from the start.
	if p.Total.IsZero() {
		p.PaymentState = PaymentStatePaid
	}

	p.AddDomainEvent(NewPurchaseCreatedEvent(p))

	return p, nil
}

// NewCreditNote credits a purchase. The target must be an order in state
// paid, or an invoice in state unpaid or paid; never a credit note, never
// a partially paid or already credited purchase.
//
// Crediting a paid target mirrors every item with negated quantity onto
// the credit note, which starts unpaid until the refund settles. Crediting
// an unpaid invoice produces an empty credit note that is immediately
// paid, and cancels the target. Either way the target ends credited.
func NewCreditNote(target *Purchase, ocr string) (*Purchase, error) {
	if target.Kind == KindCreditNote {
		return nil, shared.NewDomainError("CREDIT_NOT_ALLOWED", "Credit notes cannot be credited")
	}
	if target.PaymentState == PaymentStateCredited {
		return nil, shared.NewDomainError("ALREADY_CREDITED", "Purchases can only be credited once")
	}
	if target.PaymentState == PaymentStatePartial {
		return nil, shared.NewDomainError("CREDIT_NOT_ALLOWED", "Partially paid purchases cannot be credited")
	}
	if target.Kind == KindOrder && target.PaymentState != PaymentStatePaid {
		return nil, shared.NewDomainError("CREDIT_NOT_ALLOWED", "Unpaid orders cannot be credited")
	}

	var items []*PurchaseItem
	wasPaid := target.PaymentState == PaymentStatePaid
	if wasPaid {
		for i := range target.Items {
			mirror := target.Items[i].mirrored()
			items = append(items, &mirror)
		}
	}

	note, err := newPurchase(KindCreditNote, target.OrgID, target.Currency, ocr, items,
		WithBuyer(target.BuyerName, target.BuyerAddress, target.BuyerEmail, target.BuyerPhone))
	if err != nil {
		return nil, err
	}

	note.CreditedPurchaseID = &target.ID
	note.OriginalPayments = append([]PaymentRef(nil), target.MatchedPayments...)

	if !wasPaid {
		// Nothing was collected, so there is nothing to refund.
		note.PaymentState = PaymentStatePaid
		target.Cancelled = true
	}

	from := target.PaymentState
	target.PaymentState = PaymentStateCredited
	target.UpdatedAt = time.Now()
	target.IncrementVersion()
	target.AddDomainEvent(NewPurchaseCreditedEvent(target, from, note.ID))

	return note, nil
}

// ComputedTotal returns the sum of the item totals
func (p *Purchase) ComputedTotal() valueobject.Money {
	sum := decimal.Zero
	for i := range p.Items {
		sum = sum.Add(p.Items[i].Total)
	}
	return valueobject.NewMoneySEK(sum)
}

// VerifyTotal checks the stored total against the computed item total
func (p *Purchase) VerifyTotal() error {
	if !p.Total.Equal(p.ComputedTotal().Amount()) {
		return shared.ErrTotalMismatch
	}
	return nil
}

// PaidAmount returns the sum of all matched payment amounts
func (p *Purchase) PaidAmount() valueobject.Money {
	sum := decimal.Zero
	for _, ref := range p.MatchedPayments {
		sum = sum.Add(ref.Amount)
	}
	return valueobject.NewMoneySEK(sum)
}

// RemainingAmount returns the amount still to collect
func (p *Purchase) RemainingAmount() valueobject.Money {
	return valueobject.NewMoneySEK(p.Total.Sub(p.PaidAmount().Amount()))
}

// RegisterPayment applies a settlement to the purchase and advances the
// payment state. Registering the same payment twice is a no-op, so the
// operation is safe to re-run after a partial failure. The ticket issuer
// may be nil when the caller handles issuance separately.
//
// State never moves backwards: a paid purchase stays paid when excess
// payments arrive, and a credited purchase is terminal.
func (p *Purchase) RegisterPayment(ref PaymentRef, issuer *TicketIssuer) (PaymentState, error) {
	known := false
	for _, existing := range p.MatchedPayments {
		if existing.PaymentID == ref.PaymentID {
			known = true
			break
		}
	}
	if !known {
		p.MatchedPayments = append(p.MatchedPayments, ref)
	}

	if p.PaymentState == PaymentStateCredited {
		return p.PaymentState, nil
	}

	paid := p.PaidAmount().Amount()
	from := p.PaymentState
	switch {
	case paid.GreaterThanOrEqual(p.Total):
		p.PaymentState = PaymentStatePaid
		if _, err := p.IssueTickets(issuer); err != nil {
			return from, err
		}
	case paid.IsPositive():
		if p.PaymentState != PaymentStatePaid {
			p.PaymentState = PaymentStatePartial
		}
	}

	if p.PaymentState != from {
		p.UpdatedAt = time.Now()
		p.IncrementVersion()
		p.AddDomainEvent(NewPurchasePaymentStateChangedEvent(p, from))
	}

	return p.PaymentState, nil
}

// IssueTickets creates tickets for every ticket-bearing item of a paid
// purchase, topping each item up to its quantity. Re-invocation never
// duplicates tickets. Returns all tickets for the purchase, existing and
// new. A nil issuer skips issuance.
func (p *Purchase) IssueTickets(issuer *TicketIssuer) ([]Ticket, error) {
	if issuer == nil {
		return nil, nil
	}

	var result []Ticket
	for i := range p.Items {
		item := &p.Items[i]
		if !item.MakeTicket {
			continue
		}
		if !item.Price.IsZero() && p.PaymentState != PaymentStatePaid {
			continue
		}

		result = append(result, item.Tickets...)
		for n := int64(len(item.Tickets)); n < item.Quantity; n++ {
			ticket, err := issuer.Issue(p.OrgID, item)
			if err != nil {
				return nil, err
			}
			item.Tickets = append(item.Tickets, *ticket)
			result = append(result, *ticket)
		}
	}
	return result, nil
}

// CanBeCredited reports whether a credit note may be created for this
// purchase
func (p *Purchase) CanBeCredited() bool {
	switch p.Kind {
	case KindCreditNote:
		return false
	case KindOrder:
		return !p.Cancelled && p.PaymentState == PaymentStatePaid && !p.Total.IsZero()
	case KindInvoice:
		return p.PaymentState == PaymentStatePaid || p.PaymentState == PaymentStateUnpaid
	}
	return false
}

// AttachRefund records the refund settlement on a credit note and marks
// it paid
func (p *Purchase) AttachRefund(ref PaymentRef) error {
	if p.Kind != KindCreditNote {
		return shared.NewDomainError("NOT_A_CREDIT_NOTE", "Refunds can only be attached to credit notes")
	}

	p.MatchedPayments = append(p.MatchedPayments, ref)
	from := p.PaymentState
	p.PaymentState = PaymentStatePaid
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	if from != PaymentStatePaid {
		p.AddDomainEvent(NewPurchasePaymentStateChangedEvent(p, from))
	}
	return nil
}

// BuyerDescription is the text used on suggested transaction lines for
// payments matched to this purchase
func (p *Purchase) BuyerDescription() string {
	return p.BuyerName
}

func validateCurrency(code string) (string, error) {
	if len(code) != 3 {
		return "", shared.NewDomainError("INVALID_CURRENCY", "Currency must be a three-letter ISO 4217 code")
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return "", shared.NewDomainError("INVALID_CURRENCY", "Currency must be a three-letter ISO 4217 code")
		}
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", shared.NewDomainError("INVALID_CURRENCY", "Unknown ISO 4217 currency code")
	}
	return unit.String(), nil
}
