package parser

import (
	"github.com/insightdelivered/statement-import/internal/models"
)

// bankParser is a tabular export recognized by literal signatures above its
// first transaction row.
type bankParser struct {
	statementTable
	signatures []string
	exclude    []string
}

func (p *bankParser) BankName() string {
	return p.layout.bank
}

func (p *bankParser) Detect(raw string) bool {
	top := preamble(raw)
	if containsAny(top, p.exclude) {
		return false
	}
	return containsAny(top, p.signatures)
}

func (p *bankParser) Parse(raw string) (*models.ParseResult, error) {
	return p.parse(raw)
}

// NewBancolombiaParser handles Bancolombia savings and checking exports.
//
// Layout: FECHA, DESCRIPCION, SUCURSAL, DCTO, VALOR, SALDO with DD/MM/YYYY
// dates. Older exports omit the header and use YYYYMMDD.
func NewBancolombiaParser() Parser {
	return &bankParser{
		statementTable: statementTable{layout: layout{
			bank:        "Bancolombia",
			accountType: models.AccountSavings,
			dateLayouts: append(append([]string{}, dayFirstLayouts...), "20060102"),
			confidence:  0.9,
			numbers:     formatDotThousands,
			positional:  &columns{date: 0, desc: 1, credit: -1, debit: -1, amount: 4, balance: 5},
		}},
		signatures: []string{"bancolombia"},
		exclude:    []string{"nequi"},
	}
}

// NewDaviviendaParser handles Davivienda exports, usually semicolon separated.
func NewDaviviendaParser() Parser {
	return &bankParser{
		statementTable: statementTable{layout: layout{
			bank:        "Davivienda",
			accountType: models.AccountSavings,
			dateLayouts: dayFirstLayouts,
			confidence:  0.9,
			numbers:     formatDotThousands,
		}},
		signatures: []string{"davivienda"},
	}
}

// NewBBVAParser handles BBVA Colombia exports (F. Operación / F. Valor columns).
func NewBBVAParser() Parser {
	return &bankParser{
		statementTable: statementTable{layout: layout{
			bank:        "BBVA Colombia",
			accountType: models.AccountSavings,
			dateLayouts: dayFirstLayouts,
			confidence:  0.9,
			numbers:     formatDotThousands,
		}},
		signatures: []string{"bbva"},
	}
}

// NewBogotaParser handles Banco de Bogotá exports.
func NewBogotaParser() Parser {
	return &bankParser{
		statementTable: statementTable{layout: layout{
			bank:        "Banco de Bogotá",
			accountType: models.AccountSavings,
			dateLayouts: dayFirstLayouts,
			confidence:  0.9,
			numbers:     formatDotThousands,
		}},
		signatures: []string{"banco de bogotá", "banco de bogota", "bancodebogota"},
	}
}

// NewNequiParser handles Nequi wallet exports: ISO dates and a single
// signed Valor column.
func NewNequiParser() Parser {
	return &bankParser{
		statementTable: statementTable{layout: layout{
			bank:        "Nequi",
			accountType: models.AccountSavings,
			dateLayouts: append(append([]string{}, isoLayouts...), dayFirstLayouts...),
			confidence:  0.9,
			numbers:     formatDotThousands,
		}},
		signatures: []string{"nequi"},
	}
}
