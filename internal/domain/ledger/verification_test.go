package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

func sek(t *testing.T, s string) valueobject.Money {
	t.Helper()
	m, err := valueobject.NewMoneySEKFromString(s)
	require.NoError(t, err)
	return m
}

func TestNewVerification(t *testing.T) {
	orgID := uuid.New()
	periodID := uuid.New()
	seriesID := uuid.New()
	acctA := uuid.New()
	acctB := uuid.New()

	t.Run("creates balanced verification", func(t *testing.T) {
		lines := []TransactionLine{
			{AccountID: acctA, Amount: sek(t, "58.00"), Text: "POS 2026-08-30"},
			{AccountID: acctB, Amount: sek(t, "-58.00"), Text: "Coffee"},
		}
		v, err := NewVerification(orgID, periodID, seriesID, 1, time.Now(), "payment-1", lines)
		require.NoError(t, err)
		assert.Len(t, v.Lines, 2)
		assert.Equal(t, int64(1), v.Number)
		assert.Equal(t, "payment-1", v.ExternalRef)

		events := v.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeVerificationPosted, events[0].EventType())
	})

	t.Run("rejects unbalanced lines", func(t *testing.T) {
		lines := []TransactionLine{
			{AccountID: acctA, Amount: sek(t, "58.00")},
			{AccountID: acctB, Amount: sek(t, "-57.99")},
		}
		_, err := NewVerification(orgID, periodID, seriesID, 1, time.Now(), "", lines)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "UNBALANCED_VERIFICATION", domainErr.Code)
	})

	t.Run("rejects empty line set", func(t *testing.T) {
		_, err := NewVerification(orgID, periodID, seriesID, 1, time.Now(), "", nil)
		assert.Error(t, err)
	})
}

func TestVerificationTouchedAccountIDs(t *testing.T) {
	acctA := uuid.New()
	acctB := uuid.New()
	lines := []TransactionLine{
		{AccountID: acctA, Amount: sek(t, "100.00")},
		{AccountID: acctB, Amount: sek(t, "-60.00")},
		{AccountID: acctB, Amount: sek(t, "-40.00")},
	}
	v, err := NewVerification(uuid.New(), uuid.New(), uuid.New(), 7, time.Now(), "", lines)
	require.NoError(t, err)

	ids := v.TouchedAccountIDs()
	assert.Equal(t, []uuid.UUID{acctA, acctB}, ids)
}

func TestVerificationSeries(t *testing.T) {
	series, err := NewVerificationSeries(uuid.New(), uuid.New(), "A")
	require.NoError(t, err)

	assert.Equal(t, int64(1), series.AllocateNumber())
	assert.Equal(t, int64(2), series.AllocateNumber())
	assert.Equal(t, int64(3), series.NextNumber)

	_, err = NewVerificationSeries(uuid.New(), uuid.New(), "  ")
	assert.Error(t, err)
}

func TestAccountingPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	period, err := NewAccountingPeriod(uuid.New(), "2026", start, end)
	require.NoError(t, err)

	assert.True(t, period.Contains(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, period.Contains(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 6, period.YearDigit())

	_, err = NewAccountingPeriod(uuid.New(), "bad", end, start)
	assert.Error(t, err)
}

func TestAccountVat(t *testing.T) {
	acct, err := NewAccount(uuid.New(), uuid.New(), "2611", "Outgoing VAT 25%")
	require.NoError(t, err)
	assert.False(t, acct.HasVat())

	require.NoError(t, acct.SetVat("10", decimal.NewFromInt(25)))
	assert.True(t, acct.HasVat())

	vat := acct.VatAmountFor(sek(t, "100.00"))
	assert.Equal(t, "25.00", vat.StringFixed())

	// 25% of 1.50 is 0.375, rounds half up
	vat = acct.VatAmountFor(sek(t, "1.50"))
	assert.Equal(t, "0.38", vat.StringFixed())

	err = acct.SetVat("10", decimal.NewFromInt(120))
	assert.Error(t, err)
}
