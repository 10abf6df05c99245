package parser

import (
	"strings"

	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/similarity"
)

// GenericParser accepts any delimited export whose header names a date,
// a description and an amount column. It is the last resort in the registry.
type GenericParser struct {
	statementTable
}

// NewGenericParser returns the header-shape fallback parser.
func NewGenericParser() *GenericParser {
	return &GenericParser{statementTable{layout: layout{
		bank:        "Unknown bank",
		accountType: models.AccountSavings,
		dateLayouts: append(append([]string{}, dayFirstLayouts...), isoLayouts...),
		confidence:  0.8,
	}}}
}

func (p *GenericParser) BankName() string {
	return p.layout.bank
}

func (p *GenericParser) Detect(raw string) bool {
	if strings.Count(raw, "\n") == 0 && !strings.ContainsAny(raw, ",;\t") {
		return false
	}
	rows, err := readRows(head(raw, 8192))
	if err != nil {
		return false
	}
	_, _, ok := findHeader(rows, 20)
	return ok
}

func (p *GenericParser) Parse(raw string) (*models.ParseResult, error) {
	return p.parse(raw)
}

// DebitCreditParser accepts exports with no bank name whose header has
// separate Spanish Débito and Crédito columns, the shape most Colombian
// banks share. It ranks above GenericParser.
type DebitCreditParser struct {
	statementTable
}

// NewDebitCreditParser returns the Colombian debit/credit header parser.
func NewDebitCreditParser() *DebitCreditParser {
	return &DebitCreditParser{statementTable{layout: layout{
		bank:        "Unknown bank",
		accountType: models.AccountSavings,
		dateLayouts: append(append([]string{}, dayFirstLayouts...), isoLayouts...),
		confidence:  0.9,
		numbers:     formatDotThousands,
	}}}
}

func (p *DebitCreditParser) BankName() string {
	return p.layout.bank
}

func (p *DebitCreditParser) Detect(raw string) bool {
	rows, err := readRows(head(raw, 8192))
	if err != nil {
		return false
	}
	i, cols, ok := findHeader(rows, 20)
	if !ok || cols.credit < 0 || cols.debit < 0 {
		return false
	}
	return strings.Contains(similarity.Normalize(rows[i][cols.debit]), "debito") &&
		strings.Contains(similarity.Normalize(rows[i][cols.credit]), "credito")
}

func (p *DebitCreditParser) Parse(raw string) (*models.ParseResult, error) {
	return p.parse(raw)
}
