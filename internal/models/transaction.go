package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrZeroAmount is returned when a transaction carries no money movement.
var ErrZeroAmount = errors.New("transaction amount is zero")

// TransactionType is the direction of money movement.
type TransactionType string

const (
	TypeExpense TransactionType = "EXPENSE"
	TypeIncome  TransactionType = "INCOME"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// Transaction is the comparison shape used by duplicate detection.
type Transaction struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// ParsedTransaction is a single normalized row read from a statement.
// Amount is signed: positive is INCOME, negative is EXPENSE.
type ParsedTransaction struct {
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransactionType `json:"type"`
	Description    string          `json:"description"`
	RawDescription string          `json:"rawDescription,omitempty"`
}

// NewParsedTransaction builds a ParsedTransaction whose Type is derived from
// the sign of amount. Zero amounts are rejected.
func NewParsedTransaction(date time.Time, amount decimal.Decimal, description, raw string) (ParsedTransaction, error) {
	if amount.IsZero() {
		return ParsedTransaction{}, ErrZeroAmount
	}
	t := TypeExpense
	if amount.IsPositive() {
		t = TypeIncome
	}
	return ParsedTransaction{
		Date:           Date(date),
		Amount:         amount,
		Type:           t,
		Description:    description,
		RawDescription: raw,
	}, nil
}

// Transaction returns the comparison shape of p.
func (p ParsedTransaction) Transaction() Transaction {
	return Transaction{Date: p.Date, Amount: p.Amount, Description: p.Description}
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Comparable converts parsed rows to their comparison shape.
func Comparable(txns []ParsedTransaction) []Transaction {
	out := make([]Transaction, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.Transaction())
	}
	return out
}

// Sum returns the signed total of txns.
func Sum(txns []ParsedTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}
