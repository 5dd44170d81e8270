package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// Channel tags the settlement channel a payment arrived through. The set
// is closed: channel-specific suggestion and refund behavior dispatches
// on this tag.
type Channel string

const (
	ChannelGiro      Channel = "giro"
	ChannelPOS       Channel = "pos"
	ChannelPOSRebate Channel = "pos_rebate"
	ChannelSwish     Channel = "swish"
	ChannelStripe    Channel = "stripe"
	ChannelPayson    Channel = "payson"
	ChannelSeqr      Channel = "seqr"
	ChannelSimulator Channel = "simulator"
	ChannelManual    Channel = "manual"
)

// IsValid checks if the channel is a valid Channel
func (c Channel) IsValid() bool {
	switch c {
	case ChannelGiro, ChannelPOS, ChannelPOSRebate, ChannelSwish, ChannelStripe,
		ChannelPayson, ChannelSeqr, ChannelSimulator, ChannelManual:
		return true
	}
	return false
}

// String returns the string representation
func (c Channel) String() string {
	return string(c)
}

// TenderType selects the receiving account for point-of-sale payments
type TenderType string

const (
	TenderCard TenderType = "card"
	TenderCash TenderType = "cash"
)

// POSDetails is the channel payload for point-of-sale payments. The
// description field is free text naming the sold items; it is parsed
// against the catalog snapshot, not treated as a wire format.
type POSDetails struct {
	ReceiptNumber   int64           `json:"receipt_number"`
	TransactionTime string          `json:"transaction_time,omitempty"`
	Tender          TenderType      `json:"tender"`
	Fee             decimal.Decimal `json:"fee"`
	IsReturn        bool            `json:"is_return"`
	CardType        string          `json:"card_type,omitempty"`
	LastDigits      string          `json:"last_digits,omitempty"`
	Cashier         string          `json:"cashier,omitempty"`
	Device          string          `json:"device,omitempty"`
	Description     string          `json:"description,omitempty"`
}

// RebateDetails is the channel payload for point-of-sale settlement
// batches (fees, rebates) carrying no line items.
type RebateDetails struct {
	TransactionType string `json:"transaction_type"`
	Timespan        string `json:"timespan,omitempty"`
}

// GiroDetails is the channel payload for bank-giro file payments
type GiroDetails struct {
	TransactionNumber string   `json:"transaction_number,omitempty"`
	GiroNumber        string   `json:"giro_number,omitempty"`
	Refs              []string `json:"refs,omitempty"`
	Messages          []string `json:"messages,omitempty"`
	PayerName         string   `json:"payer_name,omitempty"`
	PayerAccount      string   `json:"payer_account,omitempty"`
}

// OCR returns the reference assumed to be an OCR number, when present
func (g *GiroDetails) OCR() string {
	if len(g.Refs) == 0 {
		return ""
	}
	return g.Refs[0]
}

// GatewayDetails is the channel payload for wallet/gateway payments
// (Swish, Stripe, Payson, Seqr). Reference identifies the charge or
// transfer at the provider.
type GatewayDetails struct {
	Reference string          `json:"reference"`
	Type      string          `json:"type,omitempty"`
	Fee       decimal.Decimal `json:"fee"`
}

// Payment is a settlement event observed on some channel. It optionally
// matches exactly one purchase, and is immutable once approved into a
// verification.
type Payment struct {
	shared.OrgAggregateRoot
	Channel           Channel         `gorm:"type:varchar(20);not null;index"`
	ProviderID        *uuid.UUID      `gorm:"type:uuid;index"`
	MatchedPurchaseID *uuid.UUID      `gorm:"type:uuid;index"`
	Approved          bool            `gorm:"not null;default:false;index"`
	TransactionDate   time.Time       `gorm:"not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BuyerDescr        string          `gorm:"type:varchar(200)"`
	DedupKey          string          `gorm:"type:varchar(150);not null;index:idx_payments_dedup_key,unique,where:dedup_key <> ''"`
	POS               *POSDetails     `gorm:"serializer:json"`
	Rebate            *RebateDetails  `gorm:"serializer:json"`
	Giro              *GiroDetails    `gorm:"serializer:json"`
	Gateway           *GatewayDetails `gorm:"serializer:json"`
}

// TableName returns the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// Option configures a payment at creation time
type Option func(*Payment)

// WithPOSDetails attaches a point-of-sale payload
func WithPOSDetails(details POSDetails) Option {
	return func(p *Payment) { p.POS = &details }
}

// WithRebateDetails attaches a settlement batch payload
func WithRebateDetails(details RebateDetails) Option {
	return func(p *Payment) { p.Rebate = &details }
}

// WithGiroDetails attaches a bank-giro payload
func WithGiroDetails(details GiroDetails) Option {
	return func(p *Payment) { p.Giro = &details }
}

// WithGatewayDetails attaches a wallet/gateway payload
func WithGatewayDetails(details GatewayDetails) Option {
	return func(p *Payment) { p.Gateway = &details }
}

// WithBuyerDescr presets the buyer description
func WithBuyerDescr(descr string) Option {
	return func(p *Payment) { p.BuyerDescr = descr }
}

// NewPayment creates a payment observed on a channel
func NewPayment(orgID uuid.UUID, channel Channel, providerID *uuid.UUID, amount decimal.Decimal, transactionDate time.Time, opts ...Option) (*Payment, error) {
	if !channel.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL", "Unknown payment channel")
	}

	p := &Payment{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID),
		Channel:          channel,
		ProviderID:       providerID,
		TransactionDate:  transactionDate,
		Amount:           amount,
	}

	for _, opt := range opts {
		opt(p)
	}

	// File-import channels persist their key so duplicate detection
	// survives restarts of the idempotency store. Gateway payments are
	// excluded: a refund mirrors the original's reference.
	if p.POS != nil || p.Rebate != nil || p.Giro != nil {
		p.DedupKey = p.ChannelKey()
	}

	p.AddDomainEvent(NewPaymentReceivedEvent(p))

	return p, nil
}

// AmountMoney returns the payment amount as Money
func (p *Payment) AmountMoney() valueobject.Money {
	return valueobject.NewMoneySEK(p.Amount)
}

// MatchPurchase records the purchase this payment settles. The buyer
// description is taken from the purchase's buyer name; giro payments fall
// back to the payer name from the bank file when the purchase has none.
func (p *Payment) MatchPurchase(purchaseID uuid.UUID, buyerName string) error {
	if p.MatchedPurchaseID != nil && *p.MatchedPurchaseID != purchaseID {
		return shared.NewDomainError("ALREADY_MATCHED", "Payment is already matched to another purchase")
	}
	p.MatchedPurchaseID = &purchaseID
	p.calcBuyerDescr(buyerName)
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewPaymentMatchedEvent(p))

	return nil
}

func (p *Payment) calcBuyerDescr(buyerName string) {
	if buyerName != "" {
		p.BuyerDescr = buyerName
		return
	}
	if p.Giro != nil && p.Giro.PayerName != "" {
		p.BuyerDescr = p.Giro.PayerName
	}
}

// MarkApproved flags the payment as posted to the ledger. Approving an
// already-approved payment is rejected so a payment can never produce two
// verifications.
func (p *Payment) MarkApproved() error {
	if p.Approved {
		return shared.NewDomainError("ALREADY_APPROVED", "Payment is already approved")
	}
	p.Approved = true
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewPaymentApprovedEvent(p))

	return nil
}

// Refundable reports whether the channel supports refunds for this
// payment
func (p *Payment) Refundable() bool {
	switch p.Channel {
	case ChannelSwish, ChannelStripe, ChannelSeqr, ChannelSimulator:
		return true
	case ChannelPayson:
		return p.Gateway != nil && p.Gateway.Type == "TRANSFER"
	}
	return false
}

// ChannelKey is the deduplication key for imported payments: importing
// the same settlement row twice must not create a second payment. Returns
// empty when the channel has no natural key.
func (p *Payment) ChannelKey() string {
	switch {
	case p.POS != nil:
		return fmt.Sprintf("pos:%s:%d", p.OrgID, p.POS.ReceiptNumber)
	case p.Rebate != nil:
		return fmt.Sprintf("rebate:%s:%s:%s", p.OrgID, p.Rebate.TransactionType, p.Rebate.Timespan)
	case p.Giro != nil && p.Giro.TransactionNumber != "":
		return fmt.Sprintf("giro:%s:%s:%s", p.OrgID, p.Giro.GiroNumber, p.Giro.TransactionNumber)
	case p.Gateway != nil && p.Gateway.Reference != "":
		return fmt.Sprintf("%s:%s:%s", p.Channel, p.OrgID, p.Gateway.Reference)
	}
	return ""
}

// Description is the transaction text used on suggested lines for
// unmatched channel payments
func (p *Payment) Description() string {
	switch {
	case p.POS != nil:
		return fmt.Sprintf("POS (%s)(%d): %s", p.POS.Cashier, p.POS.ReceiptNumber, p.POS.Description)
	case p.Rebate != nil:
		return fmt.Sprintf("POS: %s %s", p.Rebate.TransactionType, p.Rebate.Timespan)
	}
	return p.BuyerDescr
}
