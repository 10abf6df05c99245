package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Validation scores how well a set of added transactions closes the gap.
// It is advisory; an invalid result does not block resolution.
type Validation struct {
	Total     decimal.Decimal `json:"total"`
	Remaining decimal.Decimal `json:"remaining"`
	Accuracy  float64         `json:"accuracy"` // 0-100
	Valid     bool            `json:"valid"`
}

// ValidateSuggestions sums selected and compares it with target, the
// difference between reported and calculated balances.
func ValidateSuggestions(selected []models.SuggestedTransaction, target, tolerance decimal.Decimal) Validation {
	total := decimal.Zero
	for _, s := range selected {
		total = total.Add(s.Amount)
	}
	remaining := target.Sub(total)

	var accuracy decimal.Decimal
	switch {
	case target.IsZero() && remaining.IsZero():
		accuracy = hundred
	case target.IsZero():
		accuracy = decimal.Zero
	default:
		accuracy = hundred.Sub(remaining.Abs().Div(target.Abs()).Mul(hundred))
		if accuracy.IsNegative() {
			accuracy = decimal.Zero
		}
	}

	return Validation{
		Total:     total,
		Remaining: remaining,
		Accuracy:  accuracy.InexactFloat64(),
		Valid:     remaining.Abs().LessThanOrEqual(tolerance),
	}
}
