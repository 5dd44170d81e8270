package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/infrastructure/telemetry"
)

// ReconcileService drives the reconciliation flow around the suggestion
// and approval services: matching bank payments to purchases by reference
// number, registering settlements, importing point-of-sale batches, and
// creating and refunding credit notes.
type ReconcileService struct {
	purchaseRepo   purchase.PurchaseRepository
	paymentRepo    payment.PaymentRepository
	providerRepo   payment.ProviderRepository
	periodRepo     ledger.AccountingPeriodRepository
	ocrSequence    purchase.OCRSequence
	refunders      *payment.RefunderRegistry
	issuer         *purchase.TicketIssuer
	idempotency    shared.IdempotencyStore
	approvals      *ApprovalService
	events         shared.EventPublisher
	idempotencyTTL time.Duration
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(
	purchaseRepo purchase.PurchaseRepository,
	paymentRepo payment.PaymentRepository,
	providerRepo payment.ProviderRepository,
	periodRepo ledger.AccountingPeriodRepository,
	ocrSequence purchase.OCRSequence,
	refunders *payment.RefunderRegistry,
	issuer *purchase.TicketIssuer,
	idempotency shared.IdempotencyStore,
	approvals *ApprovalService,
	events shared.EventPublisher,
) *ReconcileService {
	return &ReconcileService{
		purchaseRepo:   purchaseRepo,
		paymentRepo:    paymentRepo,
		providerRepo:   providerRepo,
		periodRepo:     periodRepo,
		ocrSequence:    ocrSequence,
		refunders:      refunders,
		issuer:         issuer,
		idempotency:    idempotency,
		approvals:      approvals,
		events:         events,
		idempotencyTTL: shared.DefaultIdempotencyConfig().TTL,
	}
}

// MatchResult reports the outcome of matching one payment
type MatchResult struct {
	Matched      bool                  `json:"matched"`
	PurchaseID   *uuid.UUID            `json:"purchase_id,omitempty"`
	PaymentState purchase.PaymentState `json:"payment_state,omitempty"`
}

// MatchPayment matches a bank payment to a purchase through its reference
// number and registers the settlement. A payment carrying no reference,
// or a reference no purchase answers to, stays unmatched for the manual
// queue; neither is an error.
func (s *ReconcileService) MatchPayment(ctx context.Context, orgID, paymentID uuid.UUID) (*MatchResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "match_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrgID, orgID.String(),
		telemetry.SpanAttrPaymentID, paymentID.String(),
	)

	pmt, err := s.paymentRepo.FindByIDForOrg(ctx, orgID, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading payment: %w", err)
	}
	if pmt == nil {
		err := shared.NewDomainError("PAYMENT_NOT_FOUND", "Payment not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	ref := ""
	if pmt.Giro != nil {
		ref = pmt.Giro.OCR()
	}
	if ref == "" {
		return &MatchResult{}, nil
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrOCR, ref)

	purch, err := s.purchaseRepo.FindByOCR(ctx, orgID, ref)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("matching reference %s: %w", ref, err)
	}
	if purch == nil {
		return &MatchResult{}, nil
	}

	state, err := s.applyPayment(ctx, purch, pmt)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	id := purch.ID
	return &MatchResult{Matched: true, PurchaseID: &id, PaymentState: state}, nil
}

// RegisterManualPayment settles a purchase's outstanding amount with a
// manually recorded payment, taking it through the same registration path
// as channel payments.
func (s *ReconcileService) RegisterManualPayment(ctx context.Context, orgID, purchaseID uuid.UUID) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "register_manual_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrgID, orgID.String(),
		telemetry.SpanAttrPurchaseID, purchaseID.String(),
	)

	purch, err := s.purchaseRepo.FindByIDForOrg(ctx, orgID, purchaseID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading purchase: %w", err)
	}
	if purch == nil {
		err := shared.NewDomainError("PURCHASE_NOT_FOUND", "Purchase not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	remaining := purch.RemainingAmount()
	if !remaining.IsPositive() {
		err := shared.NewDomainError("NOTHING_TO_COLLECT", "Purchase has no outstanding amount")
		telemetry.RecordError(span, err)
		return nil, err
	}

	providerID, err := s.providerID(ctx, orgID, payment.ChannelManual)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	pmt, err := payment.NewPayment(orgID, payment.ChannelManual, providerID, remaining.Amount(), time.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if _, err := s.applyPayment(ctx, purch, pmt); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return pmt, nil
}

// CreateCreditNote credits a purchase: a fresh reference number is
// allocated from the organization's counter and the credit note takes
// over the target's items per the crediting rules.
func (s *ReconcileService) CreateCreditNote(ctx context.Context, orgID, purchaseID, periodID uuid.UUID) (*purchase.Purchase, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "create_credit_note")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrgID, orgID.String(),
		telemetry.SpanAttrPurchaseID, purchaseID.String(),
	)

	target, err := s.purchaseRepo.FindByIDForOrg(ctx, orgID, purchaseID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading purchase: %w", err)
	}
	if target == nil {
		err := shared.NewDomainError("PURCHASE_NOT_FOUND", "Purchase not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	period, err := s.periodRepo.FindByIDForOrg(ctx, orgID, periodID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading accounting period: %w", err)
	}
	if period == nil {
		err := shared.NewDomainError("PERIOD_NOT_FOUND", "Accounting period not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	counter, err := s.ocrSequence.Next(ctx, orgID, period.YearDigit())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("allocating reference number: %w", err)
	}
	ocr := purchase.GenerateOCR(counter, period.YearDigit())
	telemetry.SetAttribute(span, telemetry.SpanAttrOCR, ocr)

	note, err := purchase.NewCreditNote(target, ocr)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.purchaseRepo.Save(ctx, target); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("saving credited purchase: %w", err)
	}
	if err := s.purchaseRepo.Save(ctx, note); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("saving credit note: %w", err)
	}
	publishEvents(ctx, s.events, target, note)

	return note, nil
}

// RefundCreditNote refunds a credit note through the original payment's
// channel. Refundable means exactly one original payment on a channel
// that supports refunds; provider failures surface as *payment.RefundError
// so callers can distinguish them from rule violations.
func (s *ReconcileService) RefundCreditNote(ctx context.Context, orgID, creditNoteID uuid.UUID) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "refund_credit_note")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrgID, orgID.String(),
		telemetry.SpanAttrPurchaseID, creditNoteID.String(),
	)

	note, err := s.purchaseRepo.FindByIDForOrg(ctx, orgID, creditNoteID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading credit note: %w", err)
	}
	if note == nil {
		err := shared.NewDomainError("PURCHASE_NOT_FOUND", "Credit note not found")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if note.Kind != purchase.KindCreditNote {
		err := shared.NewDomainError("NOT_A_CREDIT_NOTE", "Only credit notes can be refunded")
		telemetry.RecordError(span, err)
		return nil, err
	}

	if len(note.OriginalPayments) != 1 {
		err := shared.NewDomainError("REFUND_NOT_POSSIBLE", "Refunds require exactly one original payment")
		telemetry.RecordError(span, err)
		return nil, err
	}

	original, err := s.paymentRepo.FindByIDForOrg(ctx, orgID, note.OriginalPayments[0].PaymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading original payment: %w", err)
	}
	if original == nil {
		err := shared.NewDomainError("PAYMENT_NOT_FOUND", "Original payment not found")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !original.Refundable() {
		err := shared.NewDomainError("REFUND_NOT_POSSIBLE", "Original payment channel does not support refunds")
		telemetry.RecordError(span, err)
		return nil, err
	}

	refunder := s.refunders.For(original.Channel)
	if refunder == nil {
		err := payment.NewRefundError(original.Channel, "no refunder registered", nil)
		telemetry.RecordError(span, err)
		return nil, err
	}

	refund, err := refunder.Refund(ctx, original)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.paymentRepo.Save(ctx, refund); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("saving refund payment: %w", err)
	}

	if err := note.AttachRefund(purchase.PaymentRef{PaymentID: refund.ID, Amount: refund.Amount}); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.purchaseRepo.Save(ctx, note); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("saving credit note: %w", err)
	}
	publishEvents(ctx, s.events, refund, note)

	return refund, nil
}

// POSRow is one settlement row of a point-of-sale import file: a sale
// with receipt details, or a rebate/fee batch row.
type POSRow struct {
	Amount          decimal.Decimal
	TransactionDate time.Time
	Sale            *payment.POSDetails
	Rebate          *payment.RebateDetails
}

// ImportResult reports what a point-of-sale import did
type ImportResult struct {
	Created    []uuid.UUID     `json:"created"`
	Duplicates int             `json:"duplicates"`
	Approval   *ApprovalResult `json:"approval,omitempty"`
}

// ImportPOSBatch imports point-of-sale settlement rows. Rows already seen
// (same receipt number, same rebate timespan) are skipped, so re-running
// an import file changes nothing. Fresh rows become payments and the
// whole batch is approved in one pass, recomputing balances once.
func (s *ReconcileService) ImportPOSBatch(ctx context.Context, orgID, periodID uuid.UUID, rows []POSRow) (*ImportResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "import_pos_batch")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrgID, orgID.String(),
		"row_count", len(rows),
	)

	result := &ImportResult{}

	for _, row := range rows {
		pmt, err := s.paymentFromRow(ctx, orgID, row)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		key := pmt.ChannelKey()
		if key != "" {
			fresh, err := s.idempotency.MarkProcessed(ctx, key, s.idempotencyTTL)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, fmt.Errorf("checking import key %s: %w", key, err)
			}
			if !fresh {
				result.Duplicates++
				continue
			}

			// The store is a fast path that can restart empty; the key
			// persisted on the payment is the durable record of the import.
			existing, err := s.paymentRepo.FindByDedupKey(ctx, orgID, key)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, fmt.Errorf("checking persisted import key %s: %w", key, err)
			}
			if existing != nil {
				result.Duplicates++
				continue
			}
		}

		if err := s.paymentRepo.Save(ctx, pmt); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("saving imported payment: %w", err)
		}
		publishEvents(ctx, s.events, pmt)
		result.Created = append(result.Created, pmt.ID)
	}

	if len(result.Created) > 0 {
		approval, err := s.approvals.ApprovePayments(ctx, ApproveRequest{
			OrgID:      orgID,
			PeriodID:   periodID,
			PaymentIDs: result.Created,
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.Approval = approval
	}

	telemetry.SetAttributes(span,
		"created_count", len(result.Created),
		"duplicate_count", result.Duplicates,
	)

	return result, nil
}

// OverdueInvoices lists unpaid invoices whose expiry has passed, for
// reminder processing
func (s *ReconcileService) OverdueInvoices(ctx context.Context, orgID uuid.UUID) ([]purchase.Purchase, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "overdue_invoices")
	defer span.End()

	invoices, err := s.purchaseRepo.FindUnpaidExpiredBefore(ctx, orgID, time.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading overdue invoices: %w", err)
	}
	return invoices, nil
}

// applyPayment matches and registers a settlement, persisting both sides
func (s *ReconcileService) applyPayment(ctx context.Context, purch *purchase.Purchase, pmt *payment.Payment) (purchase.PaymentState, error) {
	if err := pmt.MatchPurchase(purch.ID, purch.BuyerDescription()); err != nil {
		return purch.PaymentState, err
	}

	state, err := purch.RegisterPayment(purchase.PaymentRef{PaymentID: pmt.ID, Amount: pmt.Amount}, s.issuer)
	if err != nil {
		return state, err
	}

	if err := s.purchaseRepo.Save(ctx, purch); err != nil {
		return state, fmt.Errorf("saving purchase: %w", err)
	}
	if err := s.paymentRepo.Save(ctx, pmt); err != nil {
		return state, fmt.Errorf("saving payment: %w", err)
	}
	publishEvents(ctx, s.events, purch, pmt)
	return state, nil
}

func (s *ReconcileService) providerID(ctx context.Context, orgID uuid.UUID, channel payment.Channel) (*uuid.UUID, error) {
	provider, err := s.providerRepo.FindByChannel(ctx, orgID, channel)
	if err != nil {
		return nil, fmt.Errorf("resolving provider for %s: %w", channel, err)
	}
	if provider == nil {
		return nil, nil
	}
	id := provider.ID
	return &id, nil
}

func (s *ReconcileService) paymentFromRow(ctx context.Context, orgID uuid.UUID, row POSRow) (*payment.Payment, error) {
	switch {
	case row.Sale != nil:
		providerID, err := s.providerID(ctx, orgID, payment.ChannelPOS)
		if err != nil {
			return nil, err
		}
		return payment.NewPayment(orgID, payment.ChannelPOS, providerID, row.Amount, row.TransactionDate,
			payment.WithPOSDetails(*row.Sale))
	case row.Rebate != nil:
		providerID, err := s.providerID(ctx, orgID, payment.ChannelPOSRebate)
		if err != nil {
			return nil, err
		}
		return payment.NewPayment(orgID, payment.ChannelPOSRebate, providerID, row.Amount, row.TransactionDate,
			payment.WithRebateDetails(*row.Rebate))
	}
	return nil, shared.NewDomainError("INVALID_IMPORT_ROW", "Import row carries neither sale nor rebate details")
}
