package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// SaleLine is one reconstructed component of a point-of-sale receipt:
// an accounting-rule amount scaled by the sold quantity. One receipt item
// yields one SaleLine per line of the product's split.
type SaleLine struct {
	AccountID     uuid.UUID
	AccountNumber string
	Label         string
	Quantity      decimal.Decimal
	CustomUnit    string
	Amount        valueobject.Money
}

// ParseDescription reconstructs sold line items from a comma-separated
// receipt description such as "Coffee, Cake, 2 x Soda". Each token must
// either exactly match a catalog key, or have the form "<count> x <key>"
// where count parses as a decimal quantity (fractions are legal for
// custom-unit products).
//
// Parsing is all-or-nothing: any unrecognized token fails the entire
// description and the payment is left for manual posting. The failure is
// reported, never raised.
func (s *Snapshot) ParseDescription(description string) ([]SaleLine, bool) {
	var lines []SaleLine

	for _, token := range strings.Split(description, ",") {
		token = strings.TrimSpace(token)

		if entry, ok := s.Entry(token); ok {
			lines = append(lines, entrySaleLines(entry, decimal.NewFromInt(1))...)
			continue
		}

		parts := strings.SplitN(token, " ", 3)
		if len(parts) != 3 {
			return nil, false
		}
		count, times, key := parts[0], parts[1], parts[2]

		entry, ok := s.Entry(key)
		if !ok {
			return nil, false
		}
		if times != "x" {
			return nil, false
		}
		quantity, err := decimal.NewFromString(count)
		if err != nil {
			return nil, false
		}

		lines = append(lines, entrySaleLines(entry, quantity)...)
	}

	return lines, true
}

func entrySaleLines(entry SnapshotEntry, quantity decimal.Decimal) []SaleLine {
	lines := make([]SaleLine, 0, len(entry.Split))
	for _, split := range entry.Split {
		lines = append(lines, SaleLine{
			AccountID:     split.AccountID,
			AccountNumber: split.AccountNumber,
			Label:         entry.Key,
			Quantity:      quantity,
			CustomUnit:    entry.CustomUnit,
			Amount:        split.Amount.Multiply(quantity).RoundMinor(),
		})
	}
	return lines
}
