package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/infrastructure/telemetry"
)

// ApprovalService posts verification suggestions in bulk. Payments whose
// suggestion is invalid are skipped without error and stay in the queue
// for manual posting; approving an empty batch is a no-op.
//
// Account balances are recomputed once per batch, over the union of
// touched accounts, after every verification is posted.
type ApprovalService struct {
	paymentRepo      payment.PaymentRepository
	periodRepo       ledger.AccountingPeriodRepository
	seriesRepo       ledger.VerificationSeriesRepository
	verificationRepo ledger.VerificationRepository
	suggestions      *SuggestionService
	recalculator     ledger.BalanceRecalculator
	events           shared.EventPublisher
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	paymentRepo payment.PaymentRepository,
	periodRepo ledger.AccountingPeriodRepository,
	seriesRepo ledger.VerificationSeriesRepository,
	verificationRepo ledger.VerificationRepository,
	suggestions *SuggestionService,
	recalculator ledger.BalanceRecalculator,
	events shared.EventPublisher,
) *ApprovalService {
	return &ApprovalService{
		paymentRepo:      paymentRepo,
		periodRepo:       periodRepo,
		seriesRepo:       seriesRepo,
		verificationRepo: verificationRepo,
		suggestions:      suggestions,
		recalculator:     recalculator,
		events:           events,
	}
}

// ApproveRequest selects the payments to approve. An empty PaymentIDs
// approves every unapproved payment of the organization.
type ApproveRequest struct {
	OrgID      uuid.UUID
	PeriodID   uuid.UUID
	PaymentIDs []uuid.UUID
}

// ApprovalResult reports what a batch did
type ApprovalResult struct {
	Approved        []uuid.UUID `json:"approved"`
	Skipped         []uuid.UUID `json:"skipped"`
	TouchedAccounts int         `json:"touched_accounts"`
}

// ApprovePayments runs the approval batch: for each selected payment a
// suggestion is computed, valid suggestions become verifications and the
// payment is marked approved. Invalid suggestions and already-approved
// payments are skipped, never failed.
func (s *ApprovalService) ApprovePayments(ctx context.Context, req ApproveRequest) (*ApprovalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "approve_payments")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrgID, req.OrgID.String(),
		"requested_count", len(req.PaymentIDs),
	)

	period, err := s.periodRepo.FindByIDForOrg(ctx, req.OrgID, req.PeriodID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("loading accounting period: %w", err)
	}
	if period == nil {
		err := shared.NewDomainError("PERIOD_NOT_FOUND", "Accounting period not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	payments, err := s.selectPayments(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &ApprovalResult{}
	touched := make(map[uuid.UUID]struct{})

	for i := range payments {
		pmt := &payments[i]
		posted, accountIDs, err := s.approveOne(ctx, pmt, period)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if !posted {
			result.Skipped = append(result.Skipped, pmt.ID)
			continue
		}
		result.Approved = append(result.Approved, pmt.ID)
		for _, id := range accountIDs {
			touched[id] = struct{}{}
		}
	}

	if len(touched) > 0 {
		accountIDs := make([]uuid.UUID, 0, len(touched))
		for id := range touched {
			accountIDs = append(accountIDs, id)
		}
		if err := s.recalculator.RecalculateBalances(ctx, accountIDs); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("recalculating balances: %w", err)
		}
		result.TouchedAccounts = len(accountIDs)
	}

	telemetry.SetAttributes(span,
		"approved_count", len(result.Approved),
		"skipped_count", len(result.Skipped),
		"touched_accounts", result.TouchedAccounts,
	)

	return result, nil
}

func (s *ApprovalService) selectPayments(ctx context.Context, req ApproveRequest) ([]payment.Payment, error) {
	if len(req.PaymentIDs) == 0 {
		payments, err := s.paymentRepo.FindUnapproved(ctx, req.OrgID)
		if err != nil {
			return nil, fmt.Errorf("loading unapproved payments: %w", err)
		}
		return payments, nil
	}

	payments := make([]payment.Payment, 0, len(req.PaymentIDs))
	for _, id := range req.PaymentIDs {
		pmt, err := s.paymentRepo.FindByIDForOrg(ctx, req.OrgID, id)
		if err != nil {
			return nil, fmt.Errorf("loading payment %s: %w", id, err)
		}
		if pmt == nil {
			return nil, shared.NewDomainError("PAYMENT_NOT_FOUND", "Payment not found")
		}
		payments = append(payments, *pmt)
	}
	return payments, nil
}

// approveOne posts one payment's suggestion. Returns posted=false when
// the payment is skipped.
func (s *ApprovalService) approveOne(ctx context.Context, pmt *payment.Payment, period *ledger.AccountingPeriod) (bool, []uuid.UUID, error) {
	if pmt.Approved {
		return false, nil, nil
	}

	// A verification carrying this payment's reference means a previous
	// run got as far as posting; finish the approval instead of posting
	// twice.
	existing, err := s.verificationRepo.FindByExternalRef(ctx, pmt.OrgID, pmt.ID.String())
	if err != nil {
		return false, nil, fmt.Errorf("checking for existing verification: %w", err)
	}
	if existing != nil {
		if err := s.markApproved(ctx, pmt); err != nil {
			return false, nil, err
		}
		return true, existing.TouchedAccountIDs(), nil
	}

	sug, err := s.suggestions.Suggest(ctx, pmt, period)
	if err != nil {
		return false, nil, err
	}
	if !sug.Valid {
		return false, nil, nil
	}

	series, err := s.seriesRepo.FindByIDForOrg(ctx, pmt.OrgID, *sug.SeriesID)
	if err != nil {
		return false, nil, fmt.Errorf("loading series: %w", err)
	}
	if series == nil {
		return false, nil, shared.NewDomainError("SERIES_NOT_FOUND", "Verification series not found")
	}

	lines, err := sug.TransactionLines()
	if err != nil {
		return false, nil, err
	}

	number := series.AllocateNumber()
	verification, err := ledger.NewVerification(
		pmt.OrgID, period.ID, series.ID,
		number, sug.TransactionDate, pmt.ID.String(),
		lines,
	)
	if err != nil {
		return false, nil, err
	}

	if err := s.seriesRepo.Save(ctx, series); err != nil {
		return false, nil, fmt.Errorf("saving series: %w", err)
	}
	if err := s.verificationRepo.Save(ctx, verification); err != nil {
		return false, nil, fmt.Errorf("saving verification: %w", err)
	}
	if err := s.markApproved(ctx, pmt); err != nil {
		return false, nil, err
	}
	publishEvents(ctx, s.events, verification)

	return true, verification.TouchedAccountIDs(), nil
}

func (s *ApprovalService) markApproved(ctx context.Context, pmt *payment.Payment) error {
	if err := pmt.MarkApproved(); err != nil {
		return err
	}
	if err := s.paymentRepo.Save(ctx, pmt); err != nil {
		return fmt.Errorf("saving payment: %w", err)
	}
	publishEvents(ctx, s.events, pmt)
	return nil
}
