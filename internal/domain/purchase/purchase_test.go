package purchase

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

type fakeSigner struct{}

func (fakeSigner) Sign(payload string) (string, error) { return "sig", nil }

func testIssuer() *TicketIssuer {
	return NewTicketIssuer("https://example.org", fakeSigner{})
}

func mustItem(t *testing.T, name, price string, quantity int64) *PurchaseItem {
	t.Helper()
	m, err := valueobject.NewMoneySEKFromString(price)
	require.NoError(t, err)
	item, err := NewCustomItem(name, m, quantity, []catalog.AccountingRule{
		{AccountNumber: "3001", Amount: m.Amount()},
	})
	require.NoError(t, err)
	return item
}

func paymentOf(t *testing.T, amount string) PaymentRef {
	t.Helper()
	return PaymentRef{PaymentID: uuid.New(), Amount: decimal.RequireFromString(amount)}
}

func TestNewInvoice(t *testing.T) {
	orgID := uuid.New()

	t.Run("computes total from items", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "100.00", 1),
		})
		require.NoError(t, err)
		assert.Equal(t, KindInvoice, inv.Kind)
		assert.Equal(t, PaymentStateUnpaid, inv.PaymentState)
		assert.Equal(t, "100.00", inv.Total.StringFixed(2))
		assert.NotNil(t, inv.ExpiryDate)
		assert.NotZero(t, inv.Nonce)
	})

	t.Run("rejects stated total mismatch", func(t *testing.T) {
		_, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "100.00", 1),
		}, WithStatedTotal(decimal.RequireFromString("99.00")))
		assert.ErrorIs(t, err, shared.ErrTotalMismatch)
	})

	t.Run("rejects invalid currency", func(t *testing.T) {
		for _, code := range []string{"", "SE", "sek", "XXZ", "KRONOR"} {
			_, err := NewInvoice(orgID, code, "101967", []*PurchaseItem{
				mustItem(t, "Membership", "100.00", 1),
			})
			assert.Error(t, err, "currency %q", code)
		}
	})

	t.Run("zero total starts paid", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Free entry", "0.00", 1),
		})
		require.NoError(t, err)
		assert.Equal(t, PaymentStatePaid, inv.PaymentState)
	})
}

func TestRegisterPayment(t *testing.T) {
	orgID := uuid.New()

	newInvoice100 := func(t *testing.T) *Purchase {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "100.00", 1),
		})
		require.NoError(t, err)
		return inv
	}

	t.Run("partial then paid", func(t *testing.T) {
		inv := newInvoice100(t)

		state, err := inv.RegisterPayment(paymentOf(t, "40.00"), nil)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatePartial, state)
		assert.Equal(t, "60.00", inv.RemainingAmount().StringFixed())

		state, err = inv.RegisterPayment(paymentOf(t, "60.00"), nil)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatePaid, state)
		assert.Equal(t, "0.00", inv.RemainingAmount().StringFixed())
	})

	t.Run("registering the same payment twice is a no-op", func(t *testing.T) {
		inv := newInvoice100(t)
		ref := paymentOf(t, "40.00")

		state, err := inv.RegisterPayment(ref, nil)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatePartial, state)

		state, err = inv.RegisterPayment(ref, nil)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatePartial, state)
		assert.Len(t, inv.MatchedPayments, 1)
		assert.Equal(t, "60.00", inv.RemainingAmount().StringFixed())
	})

	t.Run("overpayment stays paid", func(t *testing.T) {
		inv := newInvoice100(t)
		_, err := inv.RegisterPayment(paymentOf(t, "100.00"), nil)
		require.NoError(t, err)

		state, err := inv.RegisterPayment(paymentOf(t, "25.00"), nil)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatePaid, state)
	})

	t.Run("state never decreases in rank", func(t *testing.T) {
		inv := newInvoice100(t)
		prev := inv.PaymentState.Rank()
		for _, amount := range []string{"10.00", "20.00", "80.00", "5.00"} {
			state, err := inv.RegisterPayment(paymentOf(t, amount), nil)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, state.Rank(), prev)
			prev = state.Rank()
		}
	})
}

func TestTicketIssuance(t *testing.T) {
	orgID := uuid.New()

	ticketItem := func(t *testing.T, quantity int64) *PurchaseItem {
		item := mustItem(t, "Concert entry", "150.00", quantity)
		item.MakeTicket = true
		return item
	}

	t.Run("tickets issued exactly once on paid", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{ticketItem(t, 2)})
		require.NoError(t, err)

		_, err = inv.RegisterPayment(paymentOf(t, "120.00"), testIssuer())
		require.NoError(t, err)
		assert.Empty(t, inv.Items[0].Tickets, "no tickets while partial")

		_, err = inv.RegisterPayment(paymentOf(t, "180.00"), testIssuer())
		require.NoError(t, err)
		assert.Len(t, inv.Items[0].Tickets, 2)

		// A further payment must not duplicate tickets.
		_, err = inv.RegisterPayment(paymentOf(t, "1.00"), testIssuer())
		require.NoError(t, err)
		assert.Len(t, inv.Items[0].Tickets, 2)

		tickets, err := inv.IssueTickets(testIssuer())
		require.NoError(t, err)
		assert.Len(t, tickets, 2)
		assert.Len(t, inv.Items[0].Tickets, 2)
	})

	t.Run("tickets carry signed qr and numeric barcode", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{ticketItem(t, 1)})
		require.NoError(t, err)
		_, err = inv.RegisterPayment(paymentOf(t, "150.00"), testIssuer())
		require.NoError(t, err)

		ticket := inv.Items[0].Tickets[0]
		assert.Contains(t, ticket.QRCode, "https://example.org/ticket/")
		assert.Contains(t, ticket.QRCode, "sig")
		assert.Len(t, ticket.Barcode, 40)
	})

	t.Run("void and unvoid", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{ticketItem(t, 1)})
		require.NoError(t, err)
		_, err = inv.RegisterPayment(paymentOf(t, "150.00"), testIssuer())
		require.NoError(t, err)

		ticket := &inv.Items[0].Tickets[0]
		checker := uuid.New()

		assert.True(t, ticket.Void(checker))
		assert.True(t, ticket.IsVoided())
		assert.False(t, ticket.Void(checker), "double void is rejected")

		ticket.Unvoid()
		assert.False(t, ticket.IsVoided())
	})
}

func TestNewCreditNote(t *testing.T) {
	orgID := uuid.New()

	t.Run("crediting an unpaid invoice yields an empty paid note", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "50.00", 1),
		})
		require.NoError(t, err)

		note, err := NewCreditNote(inv, "111968")
		require.NoError(t, err)

		assert.Empty(t, note.Items)
		assert.Equal(t, PaymentStatePaid, note.PaymentState)
		assert.True(t, note.Total.IsZero())
		assert.Equal(t, PaymentStateCredited, inv.PaymentState)
		assert.True(t, inv.Cancelled)
		require.NotNil(t, note.CreditedPurchaseID)
		assert.Equal(t, inv.ID, *note.CreditedPurchaseID)
	})

	t.Run("crediting a paid invoice mirrors items negated", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "100.00", 2),
		})
		require.NoError(t, err)
		_, err = inv.RegisterPayment(paymentOf(t, "200.00"), nil)
		require.NoError(t, err)

		note, err := NewCreditNote(inv, "111968")
		require.NoError(t, err)

		require.Len(t, note.Items, 1)
		assert.Equal(t, int64(-2), note.Items[0].Quantity)
		assert.Equal(t, "-200.00", note.Items[0].Total.StringFixed(2))
		assert.Equal(t, PaymentStateUnpaid, note.PaymentState)
		assert.Equal(t, "-200.00", note.Total.StringFixed(2))
		assert.Equal(t, PaymentStateCredited, inv.PaymentState)
		assert.Len(t, note.OriginalPayments, 1)
	})

	t.Run("rejects crediting a credit note", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "50.00", 1),
		})
		require.NoError(t, err)
		note, err := NewCreditNote(inv, "111968")
		require.NoError(t, err)

		_, err = NewCreditNote(note, "121969")
		assert.Error(t, err)
	})

	t.Run("rejects crediting twice", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "50.00", 1),
		})
		require.NoError(t, err)
		_, err = NewCreditNote(inv, "111968")
		require.NoError(t, err)

		_, err = NewCreditNote(inv, "121969")
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ALREADY_CREDITED", domainErr.Code)
	})

	t.Run("rejects crediting a partially paid invoice", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "100.00", 1),
		})
		require.NoError(t, err)
		_, err = inv.RegisterPayment(paymentOf(t, "40.00"), nil)
		require.NoError(t, err)

		_, err = NewCreditNote(inv, "111968")
		assert.Error(t, err)
	})

	t.Run("rejects crediting an unpaid order", func(t *testing.T) {
		order, err := NewOrder(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "T-shirt", "120.00", 1),
		})
		require.NoError(t, err)

		_, err = NewCreditNote(order, "111968")
		assert.Error(t, err)
	})

	t.Run("attach refund marks note paid", func(t *testing.T) {
		inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{
			mustItem(t, "Membership", "100.00", 1),
		})
		require.NoError(t, err)
		_, err = inv.RegisterPayment(paymentOf(t, "100.00"), nil)
		require.NoError(t, err)

		note, err := NewCreditNote(inv, "111968")
		require.NoError(t, err)
		require.Equal(t, PaymentStateUnpaid, note.PaymentState)

		require.NoError(t, note.AttachRefund(paymentOf(t, "-100.00")))
		assert.Equal(t, PaymentStatePaid, note.PaymentState)

		assert.Error(t, inv.AttachRefund(paymentOf(t, "-1.00")))
	})
}

func TestCanBeCredited(t *testing.T) {
	orgID := uuid.New()

	order, err := NewOrder(orgID, "SEK", "101967", []*PurchaseItem{
		mustItem(t, "T-shirt", "120.00", 1),
	})
	require.NoError(t, err)
	assert.False(t, order.CanBeCredited(), "unpaid order")

	_, err = order.RegisterPayment(paymentOf(t, "120.00"), nil)
	require.NoError(t, err)
	assert.True(t, order.CanBeCredited(), "paid order")

	inv, err := NewInvoice(orgID, "SEK", "111968", []*PurchaseItem{
		mustItem(t, "Membership", "100.00", 1),
	})
	require.NoError(t, err)
	assert.True(t, inv.CanBeCredited(), "unpaid invoice")
}

func TestVatBreakdown(t *testing.T) {
	orgID := uuid.New()

	pct25 := decimal.NewFromInt(25)
	pct12 := decimal.NewFromInt(12)

	food := mustItem(t, "Food", "112.00", 1)
	food.VatCode = "11"
	food.VatPercentage = &pct12
	food.TotalVat = decimal.RequireFromString("12.00")

	gear := mustItem(t, "Gear", "125.00", 2)
	gear.VatCode = "10"
	gear.VatPercentage = &pct25
	gear.TotalVat = decimal.RequireFromString("50.00")

	inv, err := NewInvoice(orgID, "SEK", "101967", []*PurchaseItem{food, gear})
	require.NoError(t, err)

	breakdown := inv.VatBreakdown()
	require.Len(t, breakdown, 2)
	assert.Equal(t, "10", breakdown[0].Code)
	assert.Equal(t, "50.00", breakdown[0].Amount.StringFixed())
	assert.Equal(t, "11", breakdown[1].Code)
	assert.Equal(t, "12.00", breakdown[1].Amount.StringFixed())
}

func TestItemInvariants(t *testing.T) {
	t.Run("custom item requires name", func(t *testing.T) {
		m, _ := valueobject.NewMoneySEKFromString("10.00")
		_, err := NewCustomItem("", m, 1, nil)
		assert.Error(t, err)
	})

	t.Run("zero quantity rejected", func(t *testing.T) {
		m, _ := valueobject.NewMoneySEKFromString("10.00")
		_, err := NewCustomItem("Thing", m, 0, nil)
		assert.Error(t, err)
	})

	t.Run("tampered total rejected", func(t *testing.T) {
		item := mustItem(t, "Thing", "10.00", 3)
		item.Total = decimal.RequireFromString("25.00")
		assert.ErrorIs(t, item.VerifyTotal(), shared.ErrTotalMismatch)

		_, err := NewInvoice(uuid.New(), "SEK", "101967", []*PurchaseItem{item})
		assert.ErrorIs(t, err, shared.ErrTotalMismatch)
	})
}

func TestItemFromProduct(t *testing.T) {
	orgID := uuid.New()
	product, err := catalog.NewProduct(orgID, "Beer", "")
	require.NoError(t, err)
	require.NoError(t, product.SetAccountingRules([]catalog.AccountingRule{
		{AccountNumber: "3001", Amount: decimal.RequireFromString("40.00")},
	}))
	product.SetVatAccount("2611")

	item, err := NewItemFromProduct(product, 2, &ItemVat{
		AccountNumber: "2611",
		Code:          "10",
		Percentage:    decimal.NewFromInt(25),
	})
	require.NoError(t, err)

	assert.Equal(t, "50.00", item.Price.StringFixed(2))
	assert.Equal(t, "100.00", item.Total.StringFixed(2))
	assert.Equal(t, "20.00", item.TotalVat.StringFixed(2))
	assert.NoError(t, item.VerifyTotal())
	assert.True(t, item.HasVat())

	// price == sum(split) + VAT, to the minor unit
	net := product.NetAmount().MultiplyByInt(2)
	assert.Equal(t, item.Total.StringFixed(2), net.Amount().Add(item.TotalVat).StringFixed(2))
}

func TestNumbering(t *testing.T) {
	t.Run("luhn checksum", func(t *testing.T) {
		// Known-good: 1234567897 is a valid Luhn number
		assert.Equal(t, 0, LuhnChecksum("1234567897"))
		assert.Equal(t, 7, LuhnChecksum("1234567890"))
	})

	t.Run("generated references verify", func(t *testing.T) {
		for counter := int64(1); counter < 50; counter++ {
			ocr := GenerateOCR(counter, 6)
			assert.True(t, ValidOCR(ocr), "ocr %s", ocr)
		}
	})

	t.Run("reference layout", func(t *testing.T) {
		// counter 1, year digit 6: "10" + "6" then length digit and check digit
		ocr := GenerateOCR(1, 6)
		assert.Equal(t, "106", ocr[:3])
		assert.Len(t, ocr, 5)
	})

	t.Run("rejects malformed references", func(t *testing.T) {
		assert.False(t, ValidOCR(""))
		assert.False(t, ValidOCR("12"))
		assert.False(t, ValidOCR("12a45"))
		assert.False(t, ValidOCR("1234567890"))
	})
}
