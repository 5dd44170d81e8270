package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromInt(100), SEK)
		require.NoError(t, err)
		assert.Equal(t, SEK, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
	})

	t.Run("from string", func(t *testing.T) {
		m, err := NewMoneyFromString("58.00", SEK)
		require.NoError(t, err)
		assert.Equal(t, "58.00 SEK", m.String())

		_, err = NewMoneyFromString("not-a-number", SEK)
		assert.Error(t, err)
	})
}

func TestMoneyArithmetic(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		a := NewMoneySEK(decimal.NewFromInt(40))
		b := NewMoneySEK(decimal.NewFromInt(60))
		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.True(t, sum.Amount().Equal(decimal.NewFromInt(100)))
	})

	t.Run("add mismatched currencies fails", func(t *testing.T) {
		a := NewMoneySEK(decimal.NewFromInt(40))
		b, _ := NewMoney(decimal.NewFromInt(60), EUR)
		_, err := a.Add(b)
		assert.Error(t, err)
	})

	t.Run("subtract", func(t *testing.T) {
		a := NewMoneySEK(decimal.NewFromInt(100))
		b := NewMoneySEK(decimal.NewFromInt(40))
		diff, err := a.Subtract(b)
		require.NoError(t, err)
		assert.True(t, diff.Amount().Equal(decimal.NewFromInt(60)))
	})

	t.Run("multiply by int", func(t *testing.T) {
		unit, _ := NewMoneySEKFromString("12.50")
		total := unit.MultiplyByInt(3)
		assert.Equal(t, "37.50", total.StringFixed())
	})

	t.Run("negate", func(t *testing.T) {
		m, _ := NewMoneySEKFromString("50.00")
		neg := m.Negate()
		assert.True(t, neg.IsNegative())
		assert.Equal(t, "-50.00", neg.StringFixed())
		assert.True(t, neg.Abs().Equals(m))
	})
}

func TestMoneyRoundMinor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"exact", "10.00", "10.00"},
		{"half rounds up", "10.005", "10.01"},
		{"below half rounds down", "10.004", "10.00"},
		{"negative half rounds towards positive", "-10.005", "-10.00"},
		{"negative below half", "-10.006", "-10.01"},
		{"three quarters", "0.375", "0.38"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoneySEKFromString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.RoundMinor().StringFixed())
		})
	}
}

func TestMoneyMinorUnits(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		m, _ := NewMoneySEKFromString("58.00")
		assert.Equal(t, int64(5800), m.MinorUnits())
		back := FromMinorUnits(5800, SEK)
		assert.True(t, back.Equals(m))
	})

	t.Run("rounds before converting", func(t *testing.T) {
		m, _ := NewMoneySEKFromString("1.005")
		assert.Equal(t, int64(101), m.MinorUnits())
	})

	t.Run("negative amounts", func(t *testing.T) {
		m, _ := NewMoneySEKFromString("-12.34")
		assert.Equal(t, int64(-1234), m.MinorUnits())
	})
}

func TestMoneyCalculatePercentage(t *testing.T) {
	base, _ := NewMoneySEKFromString("100.00")
	vat := base.CalculatePercentage(decimal.NewFromInt(25))
	assert.Equal(t, "25.00", vat.StringFixed())

	odd, _ := NewMoneySEKFromString("1.50")
	result := odd.CalculatePercentage(decimal.NewFromInt(25))
	// 0.375 rounds half up to 0.38
	assert.Equal(t, "0.38", result.StringFixed())
}

func TestMoneyComparison(t *testing.T) {
	a, _ := NewMoneySEKFromString("40.00")
	b, _ := NewMoneySEKFromString("60.00")

	lt, err := a.LessThan(b)
	require.NoError(t, err)
	assert.True(t, lt)

	gte, err := b.GreaterThanOrEqual(a)
	require.NoError(t, err)
	assert.True(t, gte)

	eur, _ := NewMoney(decimal.NewFromInt(40), EUR)
	_, err = a.LessThan(eur)
	assert.Error(t, err)
}

func TestMoneyJSON(t *testing.T) {
	m, _ := NewMoneySEKFromString("99.95")
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equals(m))
}

func TestMoneyScan(t *testing.T) {
	t.Run("scans string value", func(t *testing.T) {
		var m Money
		require.NoError(t, m.Scan("123.45"))
		assert.Equal(t, "123.45", m.StringFixed())
		assert.Equal(t, DefaultCurrency, m.Currency())
	})

	t.Run("scans nil as zero", func(t *testing.T) {
		var m Money
		require.NoError(t, m.Scan(nil))
		assert.True(t, m.IsZero())
	})

	t.Run("rejects unsupported types", func(t *testing.T) {
		var m Money
		assert.Error(t, m.Scan(42))
	})
}
