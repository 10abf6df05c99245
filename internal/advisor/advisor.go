// Package advisor suggests auxiliary accounts from transaction descriptions.
package advisor

import (
	"fmt"
	"sort"

	"github.com/insightdelivered/statement-import/internal/models"
)

// Advisor scans a batch of transactions against a category table.
type Advisor struct {
	categories []Category
}

// New builds an Advisor over cats. A nil table uses DefaultCategories.
func New(cats []Category) (*Advisor, error) {
	if cats == nil {
		cats = DefaultCategories()
	}
	compiled, err := compile(cats)
	if err != nil {
		return nil, err
	}
	return &Advisor{categories: compiled}, nil
}

// Analyze returns one suggestion per category with at least one match,
// ordered by confidence. A transaction counts at most once per category
// but may support several categories.
func (a *Advisor) Analyze(txns []models.Transaction) []models.AccountSuggestion {
	type scored struct {
		models.AccountSuggestion
		order int
	}

	var found []scored
	for i, c := range a.categories {
		var matched []models.Transaction
		for _, t := range txns {
			if c.matches(t.Description) {
				matched = append(matched, t)
			}
		}
		if len(matched) == 0 {
			continue
		}
		found = append(found, scored{
			AccountSuggestion: models.AccountSuggestion{
				Type:         c.Type,
				Reason:       fmt.Sprintf("%d transaction(s) look like %s", len(matched), c.Reason),
				Transactions: matched,
				Confidence:   confidence(len(matched), len(txns)),
			},
			order: i,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Confidence != found[j].Confidence {
			return found[i].Confidence > found[j].Confidence
		}
		if len(found[i].Transactions) != len(found[j].Transactions) {
			return len(found[i].Transactions) > len(found[j].Transactions)
		}
		return found[i].order < found[j].order
	})

	out := make([]models.AccountSuggestion, 0, len(found))
	for _, f := range found {
		out = append(out, f.AccountSuggestion)
	}
	return out
}

func confidence(matches, total int) float64 {
	var share float64
	if total > 0 {
		share = float64(matches) / float64(total)
	}
	switch {
	case matches >= 5 || share > 0.10:
		return 0.9
	case matches >= 3 || share > 0.05:
		return 0.7
	default:
		return 0.5
	}
}
