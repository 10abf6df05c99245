package parser

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/similarity"
)

// Header keywords, matched against normalized header cells.
var (
	dateHeaders    = []string{"fecha", "date", "f operacion", "f valor"}
	creditHeaders  = []string{"credito", "abono", "ingreso", "entrada", "deposito", "credit"}
	debitHeaders   = []string{"debito", "cargo", "retiro", "salida", "egreso", "debit"}
	balanceHeaders = []string{"saldo", "balance"}
	amountHeaders  = []string{"valor", "monto", "importe", "amount"}
	descHeaders    = []string{"descripcion", "concepto", "detalle", "description", "movimiento", "transaccion"}
)

// columns locates the fields of a transaction row. -1 means absent.
type columns struct {
	date, desc, credit, debit, amount, balance int
}

func (c columns) usable() bool {
	return c.date >= 0 && c.desc >= 0 && (c.amount >= 0 || c.credit >= 0 || c.debit >= 0)
}

// layout describes one bank's tabular export.
type layout struct {
	bank        string
	accountType models.AccountType
	dateLayouts []string
	confidence  float64
	// numbers is the digit grouping assumed when no amount cell settles it.
	numbers numberFormat
	// positional is used when the export has no header row.
	positional *columns
}

// statementTable is the row-oriented parse shared by every CSV parser.
type statementTable struct {
	layout layout
}

// readRows tokenizes raw with the sniffed delimiter.
func readRows(raw string) ([][]string, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	r := csv.NewReader(strings.NewReader(raw))
	r.Comma = sniffDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	for i, row := range rows {
		for j := range row {
			rows[i][j] = strings.TrimSpace(row[j])
		}
	}
	return rows, nil
}

// sniffDelimiter picks the separator that occurs most in the first lines.
func sniffDelimiter(raw string) rune {
	lines := strings.SplitN(raw, "\n", 12)
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		n := 0
		for _, l := range lines {
			n += strings.Count(l, string(d))
		}
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// mapHeader assigns each header cell to at most one role.
func mapHeader(row []string) columns {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, cell := range row {
		h := similarity.Normalize(cell)
		if h == "" {
			continue
		}
		switch {
		case c.date < 0 && hasKeyword(h, dateHeaders):
			c.date = i
		case c.credit < 0 && hasKeyword(h, creditHeaders):
			c.credit = i
		case c.debit < 0 && hasKeyword(h, debitHeaders):
			c.debit = i
		case c.balance < 0 && hasKeyword(h, balanceHeaders):
			c.balance = i
		case c.amount < 0 && hasKeyword(h, amountHeaders):
			c.amount = i
		case c.desc < 0 && hasKeyword(h, descHeaders):
			c.desc = i
		}
	}
	return c
}

func hasKeyword(h string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(h, k) {
			return true
		}
	}
	return false
}

// findHeader returns the index and mapping of the first usable header row.
func findHeader(rows [][]string, limit int) (int, columns, bool) {
	for i, row := range rows {
		if i >= limit {
			break
		}
		if c := mapHeader(row); c.usable() {
			return i, c, true
		}
	}
	return -1, columns{}, false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *statementTable) parse(raw string) (*models.ParseResult, error) {
	rows, err := readRows(raw)
	if err != nil {
		return nil, err
	}

	start, cols, ok := findHeader(rows, 40)
	switch {
	case ok:
		start++
	case t.layout.positional != nil:
		start, cols = 0, *t.layout.positional
	default:
		return nil, fmt.Errorf("no transaction header: %w", ErrNoTransactions)
	}

	format := sniffNumberFormat(amountCells(rows[start:], cols), t.layout.numbers)

	result := &models.ParseResult{
		Account: models.DetectedAccount{
			BankName:    t.layout.bank,
			AccountType: detectAccountType(head(raw, 4096), t.layout.accountType),
		},
	}
	result.Account.SuggestedName = fmt.Sprintf("%s %s", t.layout.bank, result.Account.AccountType.Label())

	var lastRunning *decimal.Decimal
	for i, row := range rows {
		if i < start {
			t.scanBalance(row, format, &result.Account)
			continue
		}

		date, dateErr := parseDate(cell(row, cols.date), t.layout.dateLayouts)
		if dateErr != nil {
			// preamble, footer, or summary line
			t.scanBalance(row, format, &result.Account)
			continue
		}

		amount, present, amtErr := rowAmount(row, cols, format)
		if amtErr != nil {
			result.SkippedRows++
			continue
		}
		if !present {
			continue
		}

		desc := cell(row, cols.desc)
		txn, err := models.NewParsedTransaction(date, amount, normalizeDescription(desc), desc)
		if err != nil {
			result.SkippedRows++
			continue
		}
		result.Transactions = append(result.Transactions, txn)

		if b := cell(row, cols.balance); b != "" {
			if bal, err := parseAmountAs(b, format); err == nil {
				lastRunning = &bal
			}
		}
	}

	if len(result.Transactions) == 0 {
		return nil, ErrNoTransactions
	}
	if result.Account.ReportedBalance == nil && lastRunning != nil {
		result.Account.ReportedBalance = lastRunning
	}

	parsed := float64(len(result.Transactions))
	result.Confidence = t.layout.confidence * parsed / (parsed + float64(result.SkippedRows))
	return result, nil
}

// scanBalance records a labeled balance found outside the transaction rows.
// The last closing balance in the document wins.
func (t *statementTable) scanBalance(row []string, format numberFormat, acct *models.DetectedAccount) {
	amount, opening, ok := balanceRow(row, format)
	if !ok {
		return
	}
	if opening {
		acct.OpeningBalance = &amount
		return
	}
	acct.ReportedBalance = &amount
}

// rowAmount returns the signed amount of a row. present is false when the
// row carries no amount at all.
func rowAmount(row []string, cols columns, format numberFormat) (amount decimal.Decimal, present bool, err error) {
	if cols.credit >= 0 || cols.debit >= 0 {
		credit, hasCredit, err := optionalAmount(cell(row, cols.credit), format)
		if err != nil {
			return decimal.Zero, false, err
		}
		if hasCredit {
			return credit.Abs(), true, nil
		}
		debit, hasDebit, err := optionalAmount(cell(row, cols.debit), format)
		if err != nil {
			return decimal.Zero, false, err
		}
		if hasDebit {
			return debit.Abs().Neg(), true, nil
		}
		if cols.amount < 0 {
			return decimal.Zero, false, nil
		}
	}
	return optionalAmount(cell(row, cols.amount), format)
}

// amountCells collects the money columns of rows.
func amountCells(rows [][]string, cols columns) []string {
	var out []string
	for _, row := range rows {
		for _, i := range []int{cols.credit, cols.debit, cols.amount, cols.balance} {
			if c := cell(row, i); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// optionalAmount treats blank and zero cells as absent.
func optionalAmount(s string, format numberFormat) (decimal.Decimal, bool, error) {
	if strings.Trim(s, " -$") == "" {
		return decimal.Zero, false, nil
	}
	d, err := parseAmountAs(s, format)
	if err != nil {
		return decimal.Zero, false, err
	}
	if d.IsZero() {
		return decimal.Zero, false, nil
	}
	return d, true, nil
}

// normalizeDescription collapses whitespace in a description.
func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
