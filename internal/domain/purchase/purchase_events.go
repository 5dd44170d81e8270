package purchase

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypePurchase = "Purchase"

// Event type constants
const (
	EventTypePurchaseCreated             = "PurchaseCreated"
	EventTypePurchasePaymentStateChanged = "PurchasePaymentStateChanged"
	EventTypePurchaseCredited            = "PurchaseCredited"
)

// PurchaseCreatedEvent is published when a purchase is created
type PurchaseCreatedEvent struct {
	shared.BaseDomainEvent
	PurchaseID uuid.UUID       `json:"purchase_id"`
	Kind       Kind            `json:"kind"`
	OCR        string          `json:"ocr"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	State      PaymentState    `json:"state"`
}

// NewPurchaseCreatedEvent creates a new PurchaseCreatedEvent
func NewPurchaseCreatedEvent(p *Purchase) *PurchaseCreatedEvent {
	return &PurchaseCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseCreated, AggregateTypePurchase, p.ID, p.OrgID),
		PurchaseID:      p.ID,
		Kind:            p.Kind,
		OCR:             p.OCR,
		Total:           p.Total,
		Currency:        p.Currency,
		State:           p.PaymentState,
	}
}

// PurchasePaymentStateChangedEvent is published when the payment state
// advances
type PurchasePaymentStateChangedEvent struct {
	shared.BaseDomainEvent
	PurchaseID uuid.UUID       `json:"purchase_id"`
	Kind       Kind            `json:"kind"`
	FromState  PaymentState    `json:"from_state"`
	ToState    PaymentState    `json:"to_state"`
	Paid       decimal.Decimal `json:"paid"`
	Total      decimal.Decimal `json:"total"`
}

// NewPurchasePaymentStateChangedEvent creates a new PurchasePaymentStateChangedEvent
func NewPurchasePaymentStateChangedEvent(p *Purchase, from PaymentState) *PurchasePaymentStateChangedEvent {
	return &PurchasePaymentStateChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchasePaymentStateChanged, AggregateTypePurchase, p.ID, p.OrgID),
		PurchaseID:      p.ID,
		Kind:            p.Kind,
		FromState:       from,
		ToState:         p.PaymentState,
		Paid:            p.PaidAmount().Amount(),
		Total:           p.Total,
	}
}

// PurchaseCreditedEvent is published on the credited purchase when a
// credit note is created for it
type PurchaseCreditedEvent struct {
	shared.BaseDomainEvent
	PurchaseID   uuid.UUID    `json:"purchase_id"`
	CreditNoteID uuid.UUID    `json:"credit_note_id"`
	FromState    PaymentState `json:"from_state"`
}

// NewPurchaseCreditedEvent creates a new PurchaseCreditedEvent
func NewPurchaseCreditedEvent(p *Purchase, from PaymentState, creditNoteID uuid.UUID) *PurchaseCreditedEvent {
	return &PurchaseCreditedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseCredited, AggregateTypePurchase, p.ID, p.OrgID),
		PurchaseID:      p.ID,
		CreditNoteID:    creditNoteID,
		FromState:       from,
	}
}
