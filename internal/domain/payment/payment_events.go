package payment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypePayment = "Payment"

// Event type constants
const (
	EventTypePaymentReceived = "PaymentReceived"
	EventTypePaymentMatched  = "PaymentMatched"
	EventTypePaymentApproved = "PaymentApproved"
)

// PaymentReceivedEvent is published when a settlement event is observed
type PaymentReceivedEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	Channel   Channel         `json:"channel"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewPaymentReceivedEvent creates a new PaymentReceivedEvent
func NewPaymentReceivedEvent(p *Payment) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentReceived, AggregateTypePayment, p.ID, p.OrgID),
		PaymentID:       p.ID,
		Channel:         p.Channel,
		Amount:          p.Amount,
	}
}

// PaymentMatchedEvent is published when a payment is matched to a
// purchase
type PaymentMatchedEvent struct {
	shared.BaseDomainEvent
	PaymentID  uuid.UUID `json:"payment_id"`
	PurchaseID uuid.UUID `json:"purchase_id"`
}

// NewPaymentMatchedEvent creates a new PaymentMatchedEvent
func NewPaymentMatchedEvent(p *Payment) *PaymentMatchedEvent {
	e := &PaymentMatchedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentMatched, AggregateTypePayment, p.ID, p.OrgID),
		PaymentID:       p.ID,
	}
	if p.MatchedPurchaseID != nil {
		e.PurchaseID = *p.MatchedPurchaseID
	}
	return e
}

// PaymentApprovedEvent is published when a payment is posted to the
// ledger
type PaymentApprovedEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	Channel   Channel         `json:"channel"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewPaymentApprovedEvent creates a new PaymentApprovedEvent
func NewPaymentApprovedEvent(p *Payment) *PaymentApprovedEvent {
	return &PaymentApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentApproved, AggregateTypePayment, p.ID, p.OrgID),
		PaymentID:       p.ID,
		Channel:         p.Channel,
		Amount:          p.Amount,
	}
}
