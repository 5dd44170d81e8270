package purchase

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// VatSummary aggregates the VAT carried by all items sharing a VAT code
type VatSummary struct {
	Code       string
	Percentage decimal.Decimal
	Amount     valueobject.Money
}

// VatBreakdown computes the purchase's VAT per code, rounded to the minor
// unit and sorted by descending percentage. Items without a VAT
// percentage contribute nothing.
func (p *Purchase) VatBreakdown() []VatSummary {
	amounts := make(map[string]decimal.Decimal)
	percentages := make(map[string]decimal.Decimal)

	for i := range p.Items {
		item := &p.Items[i]
		if item.VatPercentage == nil {
			continue
		}
		amounts[item.VatCode] = amounts[item.VatCode].Add(item.TotalVat)
		percentages[item.VatCode] = *item.VatPercentage
	}

	result := make([]VatSummary, 0, len(amounts))
	for code, amount := range amounts {
		result = append(result, VatSummary{
			Code:       code,
			Percentage: percentages[code],
			Amount:     valueobject.NewMoneySEK(amount).RoundMinor(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Percentage.GreaterThan(result[j].Percentage)
	})

	return result
}
