package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

type testEnv struct {
	t *testing.T

	orgID  uuid.UUID
	period *ledger.AccountingPeriod
	series *ledger.VerificationSeries

	purchases     *fakePurchaseRepo
	payments      *fakePaymentRepo
	providers     *fakeProviderRepo
	accounts      *fakeAccountRepo
	periods       *memRepo[ledger.AccountingPeriod]
	seriesRepo    *fakeSeriesRepo
	verifications *fakeVerificationRepo
	products      *fakeProductRepo
	cache         *fakeSnapshotCache
	recalc        *fakeRecalculator
	idem          *fakeIdempotencyStore
	refunders     *payment.RefunderRegistry
	ocrSeq        *fakeOCRSequence
	publisher     *fakePublisher

	suggestions *SuggestionService
	approvals   *ApprovalService
	service     *ReconcileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		t:             t,
		orgID:         uuid.New(),
		purchases:     newFakePurchaseRepo(),
		payments:      newFakePaymentRepo(),
		providers:     newFakeProviderRepo(),
		accounts:      newFakeAccountRepo(),
		periods:       newMemRepo(func(p ledger.AccountingPeriod) uuid.UUID { return p.ID }),
		seriesRepo:    newFakeSeriesRepo(),
		verifications: newFakeVerificationRepo(),
		products:      newFakeProductRepo(),
		cache:         newFakeSnapshotCache(),
		recalc:        &fakeRecalculator{},
		idem:          newFakeIdempotencyStore(),
		refunders:     payment.NewRefunderRegistry(),
		ocrSeq:        &fakeOCRSequence{},
		publisher:     &fakePublisher{},
	}

	period, err := ledger.NewAccountingPeriod(env.orgID, "2026",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, env.periods.Save(ctx, period))
	env.period = period

	series, err := ledger.NewVerificationSeries(env.orgID, period.ID, "A")
	require.NoError(t, err)
	require.NoError(t, env.seriesRepo.Save(ctx, series))
	env.series = series

	snapshots := catalog.NewSnapshotService(
		catalog.NewSnapshotBuilder(env.products, env.accounts), env.cache)

	env.suggestions = NewSuggestionService(
		env.purchases, env.providers, env.accounts, env.seriesRepo, snapshots)
	env.approvals = NewApprovalService(
		env.payments, env.periods, env.seriesRepo, env.verifications, env.suggestions, env.recalc,
		env.publisher)
	env.service = NewReconcileService(
		env.purchases, env.payments, env.providers, env.periods,
		env.ocrSeq, env.refunders,
		purchase.NewTicketIssuer("https://tickets.example.org", fakeSigner{}),
		env.idem, env.approvals, env.publisher)

	return env
}

func (env *testEnv) addAccount(number string, vatPct string) *ledger.Account {
	env.t.Helper()
	account, err := ledger.NewAccount(env.orgID, env.period.ID, number, "Account "+number)
	require.NoError(env.t, err)
	if vatPct != "" {
		require.NoError(env.t, account.SetVat("U1", decimal.RequireFromString(vatPct)))
	}
	require.NoError(env.t, env.accounts.Save(context.Background(), account))
	return account
}

func (env *testEnv) addProvider(channel payment.Channel, account, cash, fee string) *payment.PaymentProvider {
	env.t.Helper()
	provider, err := payment.NewPaymentProvider(env.orgID, string(channel)+" provider", channel)
	require.NoError(env.t, err)
	provider.Configure(account, cash, fee, "A")
	require.NoError(env.t, env.providers.Save(context.Background(), provider))
	return provider
}

func (env *testEnv) addProduct(name string, rules []catalog.AccountingRule, vatAccount, posPrice string) *catalog.Product {
	env.t.Helper()
	product, err := catalog.NewProduct(env.orgID, name, "")
	require.NoError(env.t, err)
	require.NoError(env.t, product.SetAccountingRules(rules))
	if vatAccount != "" {
		product.SetVatAccount(vatAccount)
	}
	price := decimal.RequireFromString(posPrice)
	product.SetPosPrice(&price)
	require.NoError(env.t, env.products.Save(context.Background(), product))
	return product
}

// standard point-of-sale fixture: card/cash/fee accounts, a POS provider
// and two products splitting over three revenue accounts
func (env *testEnv) setupPointOfSale() {
	env.addAccount("1580", "")
	env.addAccount("1910", "")
	env.addAccount("6570", "")
	env.addAccount("1111", "")
	env.addAccount("2222", "")
	env.addAccount("2223", "")
	env.addProvider(payment.ChannelPOS, "1580", "1910", "6570")
	env.addProduct("Coffee", []catalog.AccountingRule{
		{AccountNumber: "1111", Amount: decimal.NewFromInt(30)},
	}, "", "30")
	env.addProduct("Cake", []catalog.AccountingRule{
		{AccountNumber: "2222", Amount: decimal.NewFromInt(22)},
		{AccountNumber: "2223", Amount: decimal.NewFromInt(8)},
	}, "", "30")
}

func (env *testEnv) posPayment(amount, fee, description string) *payment.Payment {
	env.t.Helper()
	pmt, err := payment.NewPayment(env.orgID, payment.ChannelPOS, nil,
		decimal.RequireFromString(amount),
		time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC),
		payment.WithPOSDetails(payment.POSDetails{
			ReceiptNumber: 1234,
			Tender:        payment.TenderCard,
			Fee:           decimal.RequireFromString(fee),
			Cashier:       "Anna",
			Description:   description,
		}))
	require.NoError(env.t, err)
	require.NoError(env.t, env.payments.Save(context.Background(), pmt))
	return pmt
}

func lineAmounts(sug *VerificationSuggestion) map[string][]string {
	out := make(map[string][]string)
	for _, tx := range sug.Transactions {
		out[tx.Account.Number] = append(out[tx.Account.Number], tx.Amount.Decimal.StringFixed(2))
	}
	return out
}

func TestSuggestPointOfSale(t *testing.T) {
	ctx := context.Background()

	t.Run("card sale with fee books the full receipt", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt := env.posPayment("60.00", "1.00", "Coffee, Cake")

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.True(t, sug.Valid)
		assert.True(t, sug.Balanced)
		assert.True(t, sug.HasProvider)
		assert.Empty(t, sug.MissingAccounts)
		require.NotNil(t, sug.SeriesID)
		assert.Equal(t, "A", sug.SeriesName)

		require.Len(t, sug.Transactions, 6)
		assert.True(t, sug.Sum().IsZero())

		amounts := lineAmounts(sug)
		assert.Equal(t, []string{"60.00", "-1.00"}, amounts["1580"])
		assert.Equal(t, []string{"-30.00"}, amounts["1111"])
		assert.Equal(t, []string{"-22.00"}, amounts["2222"])
		assert.Equal(t, []string{"-8.00"}, amounts["2223"])
		assert.Equal(t, []string{"1.00"}, amounts["6570"])

		assert.Equal(t, "POS (Anna)(1234): Coffee, Cake", sug.Transactions[0].Text)
		assert.Equal(t, int64(6000), sug.Transactions[0].Amount.Cents)
		assert.Equal(t, "Coffee", sug.Transactions[1].Text)
		assert.Equal(t, int64(-3000), sug.Transactions[1].Amount.Cents)
		assert.Equal(t, "POS fee", sug.Transactions[4].Text)
	})

	t.Run("every line resolves to a period account", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt := env.posPayment("60.00", "0.00", "Coffee, Cake")

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)
		for _, tx := range sug.Transactions {
			assert.NotNil(t, tx.Account.ID, "account %s should resolve", tx.Account.Number)
		}
	})

	t.Run("counted quantity scales the split", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt := env.posPayment("90.00", "0.00", "2 x Coffee, Cake")

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.True(t, sug.Valid)
		amounts := lineAmounts(sug)
		assert.Equal(t, []string{"-60.00"}, amounts["1111"])
		assert.Equal(t, "Coffee (2st)", sug.Transactions[1].Text)
	})

	t.Run("unknown item fails the whole parse", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt := env.posPayment("60.00", "0.00", "Coffee, 3 x Frobnicator")

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.False(t, sug.Valid)
		assert.False(t, sug.Balanced)
		// Only the settlement line survives; no guessed partial lines.
		require.Len(t, sug.Transactions, 1)
		assert.Equal(t, "1580", sug.Transactions[0].Account.Number)
	})

	t.Run("return negates the sale lines back", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt, err := payment.NewPayment(env.orgID, payment.ChannelPOS, nil,
			decimal.RequireFromString("-30.00"), time.Now(),
			payment.WithPOSDetails(payment.POSDetails{
				ReceiptNumber: 1235,
				Tender:        payment.TenderCard,
				IsReturn:      true,
				Description:   "Coffee",
			}))
		require.NoError(t, err)

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.True(t, sug.Valid)
		amounts := lineAmounts(sug)
		assert.Equal(t, []string{"-30.00"}, amounts["1580"])
		assert.Equal(t, []string{"30.00"}, amounts["1111"])
	})

	t.Run("cash tender books against the cash account", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt, err := payment.NewPayment(env.orgID, payment.ChannelPOS, nil,
			decimal.RequireFromString("30.00"), time.Now(),
			payment.WithPOSDetails(payment.POSDetails{
				ReceiptNumber: 1236,
				Tender:        payment.TenderCash,
				Description:   "Coffee",
			}))
		require.NoError(t, err)

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)
		assert.True(t, sug.Valid)
		assert.Equal(t, "1910", sug.Transactions[0].Account.Number)
	})

	t.Run("no provider leaves the suggestion invalid", func(t *testing.T) {
		env := newTestEnv(t)
		env.addAccount("1111", "")
		env.addProduct("Coffee", []catalog.AccountingRule{
			{AccountNumber: "1111", Amount: decimal.NewFromInt(30)},
		}, "", "30")
		pmt := env.posPayment("30.00", "0.00", "Coffee")

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)
		assert.False(t, sug.Valid)
		assert.False(t, sug.HasProvider)
	})
}

func TestSuggestRebate(t *testing.T) {
	ctx := context.Background()

	t.Run("fee batch books a two line entry", func(t *testing.T) {
		env := newTestEnv(t)
		env.setupPointOfSale()
		pmt, err := payment.NewPayment(env.orgID, payment.ChannelPOSRebate, nil,
			decimal.RequireFromString("-3.50"), time.Now(),
			payment.WithRebateDetails(payment.RebateDetails{TransactionType: "fee", Timespan: "2026-08"}))
		require.NoError(t, err)

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.True(t, sug.Valid)
		assert.True(t, sug.Balanced)
		require.Len(t, sug.Transactions, 2)
		assert.Equal(t, "1580", sug.Transactions[0].Account.Number)
		assert.Equal(t, "-3.50", sug.Transactions[0].Amount.Decimal.StringFixed(2))
		assert.Equal(t, "6570", sug.Transactions[1].Account.Number)
		assert.Equal(t, "3.50", sug.Transactions[1].Amount.Decimal.StringFixed(2))
		assert.Equal(t, "POS: fee 2026-08", sug.Transactions[0].Text)
	})

	t.Run("no provider means no lines", func(t *testing.T) {
		env := newTestEnv(t)
		pmt, err := payment.NewPayment(env.orgID, payment.ChannelPOSRebate, nil,
			decimal.RequireFromString("-3.50"), time.Now(),
			payment.WithRebateDetails(payment.RebateDetails{TransactionType: "fee"}))
		require.NoError(t, err)

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)
		assert.False(t, sug.Valid)
		assert.Empty(t, sug.Transactions)
	})
}

// matchedFixture creates a paid-for invoice with one product-derived item
// (2 x Widget at 50.00 gross, 25% VAT) and a swish payment matched to it
func matchedFixture(t *testing.T, env *testEnv, amount string) (*payment.Payment, *purchase.Purchase) {
	t.Helper()
	ctx := context.Background()

	env.addAccount("1930", "")
	env.addAccount("3001", "")
	vatAccount := env.addAccount("2611", "25")
	env.addProvider(payment.ChannelSwish, "1930", "", "")

	product, err := catalog.NewProduct(env.orgID, "Widget", "")
	require.NoError(t, err)
	require.NoError(t, product.SetAccountingRules([]catalog.AccountingRule{
		{AccountNumber: "3001", Amount: decimal.NewFromInt(40)},
	}))
	product.SetVatAccount("2611")

	item, err := purchase.NewItemFromProduct(product, 2, &purchase.ItemVat{
		AccountNumber: vatAccount.Number,
		Code:          vatAccount.VatCode,
		Percentage:    *vatAccount.VatPercentage,
	})
	require.NoError(t, err)

	purch, err := purchase.NewInvoice(env.orgID, "SEK", "10652", []*purchase.PurchaseItem{item},
		purchase.WithBuyer("Anna Andersson", "", "", ""))
	require.NoError(t, err)
	require.NoError(t, env.purchases.Save(ctx, purch))

	pmt, err := payment.NewPayment(env.orgID, payment.ChannelSwish, nil,
		decimal.RequireFromString(amount), time.Now())
	require.NoError(t, err)
	require.NoError(t, pmt.MatchPurchase(purch.ID, purch.BuyerDescription()))
	require.NoError(t, env.payments.Save(ctx, pmt))

	return pmt, purch
}

func TestSuggestMatched(t *testing.T) {
	ctx := context.Background()

	t.Run("books provider against item split and vat", func(t *testing.T) {
		env := newTestEnv(t)
		pmt, purch := matchedFixture(t, env, "100.00")
		require.True(t, purch.Total.Equal(decimal.NewFromInt(100)))

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.True(t, sug.Valid)
		assert.True(t, sug.Balanced)
		assert.True(t, sug.HasProvider)
		require.NotNil(t, sug.SeriesID)

		require.Len(t, sug.Transactions, 3)
		assert.True(t, sug.Sum().IsZero())

		assert.Equal(t, "1930", sug.Transactions[0].Account.Number)
		assert.Equal(t, "100.00", sug.Transactions[0].Amount.Decimal.StringFixed(2))
		assert.Equal(t, "Anna Andersson", sug.Transactions[0].Text)

		assert.Equal(t, "3001", sug.Transactions[1].Account.Number)
		assert.Equal(t, "-80.00", sug.Transactions[1].Amount.Decimal.StringFixed(2))
		assert.Equal(t, "Anna Andersson, Widget (2)", sug.Transactions[1].Text)

		assert.Equal(t, "2611", sug.Transactions[2].Account.Number)
		assert.Equal(t, "-20.00", sug.Transactions[2].Amount.Decimal.StringFixed(2))
		assert.Equal(t, int64(-2000), sug.Transactions[2].Amount.Cents)
	})

	t.Run("amount mismatch leaves it unbalanced", func(t *testing.T) {
		env := newTestEnv(t)
		pmt, _ := matchedFixture(t, env, "90.00")

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)
		assert.False(t, sug.Balanced)
		assert.False(t, sug.Valid)
	})

	t.Run("missing account degrades instead of failing", func(t *testing.T) {
		env := newTestEnv(t)
		pmt, purch := matchedFixture(t, env, "100.00")

		// Point one rule at an account the period does not carry.
		purch.Items[0].AccountingRules[0].AccountNumber = "9999"
		require.NoError(t, env.purchases.Save(ctx, purch))

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		assert.False(t, sug.Valid)
		assert.Equal(t, []string{"9999"}, sug.MissingAccounts)
		for _, tx := range sug.Transactions {
			if tx.Account.Number == "9999" {
				assert.Nil(t, tx.Account.ID)
			}
		}
	})

	t.Run("rules sort by account number", func(t *testing.T) {
		env := newTestEnv(t)
		env.addAccount("1930", "")
		env.addAccount("3001", "")
		env.addAccount("3051", "")
		env.addProvider(payment.ChannelStripe, "1930", "", "")

		item, err := purchase.NewCustomItem("Bundle", valueobject.NewMoneySEK(decimal.NewFromInt(50)), 1,
			[]catalog.AccountingRule{
				{AccountNumber: "3051", Amount: decimal.NewFromInt(10)},
				{AccountNumber: "3001", Amount: decimal.NewFromInt(40)},
			})
		require.NoError(t, err)
		purch, err := purchase.NewOrder(env.orgID, "SEK", "10777", []*purchase.PurchaseItem{item})
		require.NoError(t, err)
		require.NoError(t, env.purchases.Save(ctx, purch))

		pmt, err := payment.NewPayment(env.orgID, payment.ChannelStripe, nil,
			decimal.NewFromInt(50), time.Now())
		require.NoError(t, err)
		require.NoError(t, pmt.MatchPurchase(purch.ID, ""))

		sug, err := env.suggestions.Suggest(ctx, pmt, env.period)
		require.NoError(t, err)

		require.Len(t, sug.Transactions, 3)
		assert.Equal(t, "3001", sug.Transactions[1].Account.Number)
		assert.Equal(t, "3051", sug.Transactions[2].Account.Number)
		assert.Equal(t, "Bundle", sug.Transactions[1].Text)
	})
}

func TestSuggestManualQueue(t *testing.T) {
	env := newTestEnv(t)
	pmt, err := payment.NewPayment(env.orgID, payment.ChannelManual, nil,
		decimal.NewFromInt(10), time.Now())
	require.NoError(t, err)

	sug, err := env.suggestions.Suggest(context.Background(), pmt, env.period)
	require.NoError(t, err)
	assert.False(t, sug.Valid)
	assert.Empty(t, sug.Transactions)
}

func TestAmountPairEncodings(t *testing.T) {
	pair := NewAmountPair(valueobject.NewMoneySEK(decimal.RequireFromString("12.345")))
	assert.Equal(t, "12.35", pair.Decimal.StringFixed(2))
	assert.Equal(t, int64(1235), pair.Cents)

	neg := NewAmountPair(valueobject.NewMoneySEK(decimal.RequireFromString("-8.00")))
	assert.Equal(t, int64(-800), neg.Cents)
}
