package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"
)

// Date layouts found in Colombian bank exports.
var (
	// DD/MM/YYYY, D/M/YYYY, DD-MM-YYYY
	dayFirstLayouts = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02/01/06"}
	// YYYY-MM-DD, YYYY/MM/DD, YYYYMMDD
	isoLayouts = []string{"2006-01-02", "2006/01/02", "20060102", "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
)

var (
	// thousands groups with dots and no decimal part, e.g. 1.234.567
	dotThousands = regexp.MustCompile(`^\d{1,3}(\.\d{3}){2,}$`)
	// thousands groups with commas, e.g. 2,000,000
	commaThousands = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	// European style: 1.234,56 or 45,5
	commaDecimal = regexp.MustCompile(`^\d{1,3}(\.\d{3})*,\d{1,2}$|^\d+,\d{1,2}$`)

	// cells that can only be read one way
	dotGrouped   = regexp.MustCompile(`^\d{1,3}(\.\d{3}){2,}(,\d+)?$|^\d{1,3}(\.\d{3})+,\d+$|^\d+,\d{1,2}$`)
	commaGrouped = regexp.MustCompile(`^\d{1,3}(,\d{3}){2,}(\.\d+)?$|^\d{1,3}(,\d{3})+\.\d+$|^\d+\.\d{1,2}$`)

	numberToken = regexp.MustCompile(`-?\(?\$?\s?\d[\d.,]*\d\)?|-?\d`)
	dateLike    = regexp.MustCompile(`\d{1,4}[/-]\d{1,2}[/-]\d{1,4}`)
	// a delimited cell holding only a date
	dateCell = regexp.MustCompile(`(^|[,;\t])\s*"?(\d{1,4}[/-]\d{1,2}[/-]\d{1,4}|(19|20)\d{6})(\s+\d{1,2}:\d{2}(:\d{2})?)?"?\s*([,;\t]|$)`)

	balanceLabel = regexp.MustCompile(`(?i)\b(saldo|balance)\b`)
	openingLabel = regexp.MustCompile(`(?i)\b(anterior|inicial|opening|previous)\b`)
)

// numberFormat is how a statement groups digits.
type numberFormat int

const (
	// formatAuto decides per value; "45.000" reads as a decimal.
	formatAuto numberFormat = iota
	// formatDotThousands reads 1.234.567 and 1.234,56.
	formatDotThousands
	// formatCommaThousands reads 1,234,567 and 1,234.56.
	formatCommaThousands
)

// stripAmount removes currency marks and the sign from s.
func stripAmount(s string) (digits string, negative bool) {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"$", "COP", "USD", "€", "\u00a0", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	} else if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	return strings.TrimPrefix(s, "+"), negative
}

// sniffNumberFormat votes over every amount cell of a statement. Cells like
// "120.000" carry no vote; def applies when nothing is unambiguous.
func sniffNumberFormat(cells []string, def numberFormat) numberFormat {
	dot, comma := 0, 0
	for _, c := range cells {
		s, _ := stripAmount(c)
		switch {
		case dotGrouped.MatchString(s):
			dot++
		case commaGrouped.MatchString(s):
			comma++
		}
	}
	switch {
	case dot > comma:
		return formatDotThousands
	case comma > dot:
		return formatCommaThousands
	}
	return def
}

// parseAmount converts strings like "$ 2,000,000.00", "-45000", "(1.234,56)"
// or "45000 COP" to a signed decimal, guessing the separators per value.
func parseAmount(s string) (decimal.Decimal, error) {
	return parseAmountAs(s, formatAuto)
}

// parseAmountAs is parseAmount with the digit grouping already known.
func parseAmountAs(s string, format numberFormat) (decimal.Decimal, error) {
	orig := s
	s, negative := stripAmount(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", orig)
	}

	switch format {
	case formatDotThousands:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case formatCommaThousands:
		s = strings.ReplaceAll(s, ",", "")
	default:
		switch {
		case commaDecimal.MatchString(s):
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		case commaThousands.MatchString(s):
			s = strings.ReplaceAll(s, ",", "")
		case dotThousands.MatchString(s):
			s = strings.ReplaceAll(s, ".", "")
		default:
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", orig, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// parseDate tries each layout in order and returns the calendar date.
func parseDate(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Date(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: no matching layout", s)
}

// lastNumber returns the last amount-looking token in cells.
func lastNumber(cells []string, format numberFormat) (decimal.Decimal, bool) {
	for i := len(cells) - 1; i >= 0; i-- {
		if dateLike.MatchString(cells[i]) {
			continue
		}
		tokens := numberToken.FindAllString(cells[i], -1)
		for j := len(tokens) - 1; j >= 0; j-- {
			if d, err := parseAmountAs(tokens[j], format); err == nil {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

// balanceRow reports whether a non-transaction row carries a labeled
// balance, and whether that balance is the opening one.
func balanceRow(cells []string, format numberFormat) (amount decimal.Decimal, opening bool, ok bool) {
	joined := strings.Join(cells, " ")
	if !balanceLabel.MatchString(joined) {
		return decimal.Zero, false, false
	}
	amount, ok = lastNumber(cells, format)
	if !ok {
		return decimal.Zero, false, false
	}
	return amount, openingLabel.MatchString(joined), true
}

// containsFold is a case-insensitive strings.Contains.
func containsFold(text, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(text), strings.ToLower(substr))
}

// containsAny reports whether text contains any needle, ignoring case.
func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if containsFold(text, n) {
			return true
		}
	}
	return false
}

// head returns at most the first n bytes of s.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// preamble returns the part of raw above the first row that starts with,
// or holds, a date cell. Bank names are only trusted there, since the same
// names show up in transfer descriptions.
func preamble(raw string) string {
	top := head(raw, 4096)
	lines := strings.Split(top, "\n")
	for i, l := range lines {
		if dateCell.MatchString(l) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return top
}

// detectAccountType reads the account kind from statement wording.
func detectAccountType(text string, def models.AccountType) models.AccountType {
	switch {
	case containsAny(text, []string{"tarjeta de crédito", "tarjeta de credito", "credit card"}):
		return models.AccountCreditCard
	case containsAny(text, []string{"cuenta corriente", "corriente", "checking"}):
		return models.AccountChecking
	case containsAny(text, []string{"cuenta de ahorros", "ahorros", "savings"}):
		return models.AccountSavings
	}
	return def
}
