package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeVerification = "Verification"

// Event type constants
const (
	EventTypeVerificationPosted = "VerificationPosted"
)

// VerificationPostedEvent is published when a verification is posted
type VerificationPostedEvent struct {
	shared.BaseDomainEvent
	VerificationID     uuid.UUID   `json:"verification_id"`
	AccountingPeriodID uuid.UUID   `json:"accounting_period_id"`
	SeriesID           uuid.UUID   `json:"series_id"`
	Number             int64       `json:"number"`
	TransactionDate    time.Time   `json:"transaction_date"`
	ExternalRef        string      `json:"external_ref,omitempty"`
	AccountIDs         []uuid.UUID `json:"account_ids"`
}

// NewVerificationPostedEvent creates a new VerificationPostedEvent
func NewVerificationPostedEvent(v *Verification) *VerificationPostedEvent {
	return &VerificationPostedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeVerificationPosted, AggregateTypeVerification, v.ID, v.OrgID),
		VerificationID:     v.ID,
		AccountingPeriodID: v.AccountingPeriodID,
		SeriesID:           v.SeriesID,
		Number:             v.Number,
		TransactionDate:    v.TransactionDate,
		ExternalRef:        v.ExternalRef,
		AccountIDs:         v.TouchedAccountIDs(),
	}
}
