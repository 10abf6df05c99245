package advisor

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/statement-import/internal/models"
)

// Category is one suggestion kind and the description patterns that evidence it.
type Category struct {
	Type     models.SuggestedAccountType `yaml:"type"`
	Reason   string                      `yaml:"reason"`
	Patterns []string                    `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// DefaultCategories covers common Colombian bank descriptions.
func DefaultCategories() []Category {
	return []Category{
		{
			Type:   models.SuggestCreditCard,
			Reason: "credit card payments",
			Patterns: []string{
				`pago\s+(de\s+)?tc\b`,
				`pago\s+(de\s+)?tarjeta`,
				`abono\s+(a\s+)?tarjeta`,
				`tarjeta\s+de\s+cr[eé]dito`,
				`pago\s+(visa|mastercard|amex)`,
			},
		},
		{
			Type:   models.SuggestCash,
			Reason: "cash withdrawals",
			Patterns: []string{
				`retiro\s+(en\s+)?cajero`,
				`retiro\s+(en\s+)?efectivo`,
				`avance\s+(en\s+)?efectivo`,
				`\batm\b`,
				`corresponsal`,
			},
		},
		{
			Type:   models.SuggestInvestment,
			Reason: "investment movements",
			Patterns: []string{
				`apertura\s+(de\s+)?cdt`,
				`\bcdt\b`,
				`fiducia`,
				`fondo\s+de\s+inversi[oó]n`,
				`inversi[oó]n`,
				`acciones`,
			},
		},
		{
			Type:   models.SuggestSavingsAccount,
			Reason: "transfers to savings",
			Patterns: []string{
				`bolsillo`,
				`colch[oó]n`,
				`traslado\s+a\s+ahorros`,
				`transferencia\s+a\s+ahorros`,
				`meta\s+de\s+ahorro`,
			},
		},
	}
}

type patternFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadPatterns reads a YAML category table from path.
func LoadPatterns(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}
	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing patterns: %w", err)
	}
	if len(pf.Categories) == 0 {
		return nil, fmt.Errorf("no categories in %s", path)
	}
	return pf.Categories, nil
}

func compile(cats []Category) ([]Category, error) {
	out := make([]Category, len(cats))
	for i, c := range cats {
		c.compiled = make([]*regexp.Regexp, 0, len(c.Patterns))
		for _, p := range c.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compiling %s pattern %q: %w", c.Type, p, err)
			}
			c.compiled = append(c.compiled, re)
		}
		out[i] = c
	}
	return out, nil
}

func (c Category) matches(desc string) bool {
	for _, re := range c.compiled {
		if re.MatchString(desc) {
			return true
		}
	}
	return false
}
