package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
	"github.com/openbooks/backend/internal/infrastructure/telemetry"
)

// SuggestionService builds verification suggestions for payments. Three
// algorithms cover the channel shapes: purchase-matched payments book
// against the purchase's item split, unmatched point-of-sale payments
// reconstruct the sale from the receipt description, and settlement
// batches book a two-line fee entry. Everything else is left for manual
// posting.
type SuggestionService struct {
	purchaseRepo purchase.PurchaseRepository
	providerRepo payment.ProviderRepository
	accountRepo  ledger.AccountRepository
	seriesRepo   ledger.VerificationSeriesRepository
	snapshots    *catalog.SnapshotService
}

// NewSuggestionService creates a new SuggestionService
func NewSuggestionService(
	purchaseRepo purchase.PurchaseRepository,
	providerRepo payment.ProviderRepository,
	accountRepo ledger.AccountRepository,
	seriesRepo ledger.VerificationSeriesRepository,
	snapshots *catalog.SnapshotService,
) *SuggestionService {
	return &SuggestionService{
		purchaseRepo: purchaseRepo,
		providerRepo: providerRepo,
		accountRepo:  accountRepo,
		seriesRepo:   seriesRepo,
		snapshots:    snapshots,
	}
}

// Suggest builds a verification suggestion for the payment in the given
// accounting period. Resolution failures (missing accounts, missing
// provider, missing series, unparseable receipts) degrade the suggestion
// to invalid; only repository failures are errors.
func (s *SuggestionService) Suggest(ctx context.Context, pmt *payment.Payment, period *ledger.AccountingPeriod) (*VerificationSuggestion, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "suggest_verification")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, pmt.ID.String(),
		telemetry.SpanAttrPaymentChannel, string(pmt.Channel),
		telemetry.SpanAttrAmount, pmt.Amount.String(),
	)

	var (
		sug *VerificationSuggestion
		err error
	)
	switch {
	case pmt.Channel == payment.ChannelPOS && pmt.MatchedPurchaseID == nil:
		sug, err = s.suggestPointOfSale(ctx, pmt, period)
	case pmt.Channel == payment.ChannelPOSRebate:
		sug, err = s.suggestRebate(ctx, pmt, period)
	case pmt.MatchedPurchaseID != nil:
		sug, err = s.suggestMatched(ctx, pmt, period)
	default:
		// Nothing to derive lines from; the payment goes to the
		// manual queue.
		sug = newSuggestion(pmt, period)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		"valid", sug.Valid,
		"balanced", sug.Balanced,
		"line_count", len(sug.Transactions),
	)

	return sug, nil
}

func newSuggestion(pmt *payment.Payment, period *ledger.AccountingPeriod) *VerificationSuggestion {
	return &VerificationSuggestion{
		PaymentID:          pmt.ID,
		MatchedPurchaseID:  pmt.MatchedPurchaseID,
		TransactionDate:    pmt.TransactionDate,
		AccountingPeriodID: period.ID,
	}
}

// suggestMatched books a purchase-matched payment: the full amount onto
// the provider's receiving account, offset by every item's accounting
// rules at negated quantity and the item VAT totals.
func (s *SuggestionService) suggestMatched(ctx context.Context, pmt *payment.Payment, period *ledger.AccountingPeriod) (*VerificationSuggestion, error) {
	sug := newSuggestion(pmt, period)
	b := s.newLineBuilder(period)

	provider, err := s.providerRepo.FindByChannel(ctx, pmt.OrgID, pmt.Channel)
	if err != nil {
		return nil, fmt.Errorf("resolving provider for %s: %w", pmt.Channel, err)
	}

	purch, err := s.purchaseRepo.FindByIDForOrg(ctx, pmt.OrgID, *pmt.MatchedPurchaseID)
	if err != nil {
		return nil, fmt.Errorf("loading matched purchase: %w", err)
	}

	if provider != nil && provider.AccountNumber != "" {
		sug.HasProvider = true
		if err := b.addLine(ctx, provider.AccountNumber, pmt.AmountMoney(), pmt.BuyerDescr); err != nil {
			return nil, err
		}
	}

	if purch != nil {
		sug.Balanced = pmt.Amount.Equal(purch.Total)

		for i := range purch.Items {
			item := &purch.Items[i]
			label := itemLabel(pmt.BuyerDescr, item.Name, item.Quantity)

			rules := append([]catalog.AccountingRule(nil), item.AccountingRules...)
			sort.Slice(rules, func(a, b int) bool { return rules[a].AccountNumber < rules[b].AccountNumber })

			for _, rule := range rules {
				amount := valueobject.NewMoneySEK(rule.Amount).MultiplyByInt(-item.Quantity)
				if err := b.addLine(ctx, rule.AccountNumber, amount, label); err != nil {
					return nil, err
				}
			}

			if !item.TotalVat.IsZero() && item.VatAccount != "" {
				vat := valueobject.NewMoneySEK(item.TotalVat.Neg())
				if err := b.addLine(ctx, item.VatAccount, vat, label); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := s.resolveSeries(ctx, sug, provider, period); err != nil {
		return nil, err
	}

	sug.Transactions = b.lines
	sug.MissingAccounts = b.missing
	sug.Valid = purch != nil && sug.Balanced && len(b.missing) == 0 && sug.HasProvider && sug.SeriesID != nil
	return sug, nil
}

// suggestPointOfSale reconstructs an unmatched point-of-sale payment from
// its receipt description: the settlement amount onto the tender's
// receiving account, offset by the parsed sale lines, plus a fee pair
// when the terminal charged one. An unparseable description leaves the
// suggestion unbalanced and invalid.
func (s *SuggestionService) suggestPointOfSale(ctx context.Context, pmt *payment.Payment, period *ledger.AccountingPeriod) (*VerificationSuggestion, error) {
	sug := newSuggestion(pmt, period)
	b := s.newLineBuilder(period)
	details := pmt.POS
	if details == nil {
		return sug, nil
	}

	provider, err := s.providerRepo.FindByChannel(ctx, pmt.OrgID, payment.ChannelPOS)
	if err != nil {
		return nil, fmt.Errorf("resolving point-of-sale provider: %w", err)
	}

	if provider != nil && provider.ReceivingAccount(details.Tender) != "" {
		sug.HasProvider = true
		if err := b.addLine(ctx, provider.ReceivingAccount(details.Tender), pmt.AmountMoney(), pmt.Description()); err != nil {
			return nil, err
		}
	}

	snapshot, err := s.snapshots.Snapshot(ctx, pmt.OrgID, period.ID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog snapshot: %w", err)
	}

	saleLines, parsed := snapshot.ParseDescription(details.Description)
	if parsed {
		for _, line := range saleLines {
			amount := line.Amount.Negate()
			if details.IsReturn {
				amount = amount.Negate()
			}
			id := line.AccountID
			b.lines = append(b.lines, SuggestedTransaction{
				Account: AccountRef{ID: &id, Number: line.AccountNumber},
				Amount:  NewAmountPair(amount),
				Text:    saleLineLabel(line),
			})
		}
	}

	if !details.Fee.IsZero() && provider != nil {
		fee := valueobject.NewMoneySEK(details.Fee)
		if err := b.addLine(ctx, provider.AccountNumber, fee.Negate(), "POS fee"); err != nil {
			return nil, err
		}
		if err := b.addLine(ctx, provider.FeeAccountNumber, fee, "POS fee"); err != nil {
			return nil, err
		}
	}

	if err := s.resolveSeries(ctx, sug, provider, period); err != nil {
		return nil, err
	}

	sug.Transactions = b.lines
	sug.MissingAccounts = b.missing
	sug.Balanced = sug.Sum().IsZero()
	sug.Valid = parsed && sug.Balanced && len(b.missing) == 0 && sug.HasProvider && sug.SeriesID != nil
	return sug, nil
}

// suggestRebate books a settlement batch (fees, rebates) as a two-line
// entry between the provider's receiving and fee accounts. Rebates carry
// no line items; the point-of-sale provider's accounts apply when no
// dedicated rebate provider is configured.
func (s *SuggestionService) suggestRebate(ctx context.Context, pmt *payment.Payment, period *ledger.AccountingPeriod) (*VerificationSuggestion, error) {
	sug := newSuggestion(pmt, period)
	b := s.newLineBuilder(period)

	provider, err := s.providerRepo.FindByChannel(ctx, pmt.OrgID, payment.ChannelPOSRebate)
	if err != nil {
		return nil, fmt.Errorf("resolving rebate provider: %w", err)
	}
	if provider == nil {
		provider, err = s.providerRepo.FindByChannel(ctx, pmt.OrgID, payment.ChannelPOS)
		if err != nil {
			return nil, fmt.Errorf("resolving point-of-sale provider: %w", err)
		}
	}

	if provider != nil && provider.AccountNumber != "" && provider.FeeAccountNumber != "" {
		sug.HasProvider = true
		text := pmt.Description()
		amount := pmt.AmountMoney()
		if err := b.addLine(ctx, provider.AccountNumber, amount, text); err != nil {
			return nil, err
		}
		if err := b.addLine(ctx, provider.FeeAccountNumber, amount.Negate(), text); err != nil {
			return nil, err
		}
	}

	if err := s.resolveSeries(ctx, sug, provider, period); err != nil {
		return nil, err
	}

	sug.Transactions = b.lines
	sug.MissingAccounts = b.missing
	sug.Balanced = len(b.lines) > 0 && sug.Sum().IsZero()
	sug.Valid = sug.Balanced && len(b.missing) == 0 && sug.SeriesID != nil
	return sug, nil
}

func (s *SuggestionService) resolveSeries(ctx context.Context, sug *VerificationSuggestion, provider *payment.PaymentProvider, period *ledger.AccountingPeriod) error {
	if provider == nil || provider.SeriesName == "" {
		return nil
	}
	sug.SeriesName = provider.SeriesName
	series, err := s.seriesRepo.FindByName(ctx, period.ID, provider.SeriesName)
	if err != nil {
		return fmt.Errorf("resolving series %s: %w", provider.SeriesName, err)
	}
	if series != nil {
		id := series.ID
		sug.SeriesID = &id
	}
	return nil
}

// lineBuilder accumulates suggested lines, resolving account numbers in
// the period and collecting the ones that do not resolve
type lineBuilder struct {
	svc     *SuggestionService
	period  *ledger.AccountingPeriod
	lines   []SuggestedTransaction
	missing []string
	seen    map[string]struct{}
}

func (s *SuggestionService) newLineBuilder(period *ledger.AccountingPeriod) *lineBuilder {
	return &lineBuilder{svc: s, period: period, seen: make(map[string]struct{})}
}

func (b *lineBuilder) addLine(ctx context.Context, number string, amount valueobject.Money, text string) error {
	ref := AccountRef{Number: number}
	account, err := b.svc.accountRepo.FindByNumber(ctx, b.period.ID, number)
	if err != nil {
		return fmt.Errorf("resolving account %s: %w", number, err)
	}
	if account == nil {
		if _, dup := b.seen[number]; !dup {
			b.seen[number] = struct{}{}
			b.missing = append(b.missing, number)
		}
	} else {
		id := account.ID
		ref.ID = &id
	}
	b.lines = append(b.lines, SuggestedTransaction{
		Account: ref,
		Amount:  NewAmountPair(amount),
		Text:    text,
	})
	return nil
}

// itemLabel formats a purchase-item line text: the buyer name prefixes
// when known, the quantity suffixes when it is not one
func itemLabel(buyer, name string, quantity int64) string {
	label := name
	if quantity != 1 {
		label = fmt.Sprintf("%s (%d)", name, quantity)
	}
	if buyer != "" {
		label = buyer + ", " + label
	}
	return label
}

// saleLineLabel formats a reconstructed point-of-sale line text: the
// quantity and unit suffix when the quantity is not one
func saleLineLabel(line catalog.SaleLine) string {
	if line.Quantity.Equal(decimal.NewFromInt(1)) {
		return line.Label
	}
	unit := line.CustomUnit
	if unit == "" {
		unit = "st"
	}
	return fmt.Sprintf("%s (%s%s)", line.Label, line.Quantity.String(), unit)
}
