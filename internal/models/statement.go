package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType represents the kind of account a statement belongs to.
type AccountType string

const (
	AccountSavings    AccountType = "SAVINGS"
	AccountChecking   AccountType = "CHECKING"
	AccountCreditCard AccountType = "CREDIT_CARD"
)

// Label is the human-readable account kind used in suggested names.
func (t AccountType) Label() string {
	switch t {
	case AccountChecking:
		return "Checking"
	case AccountCreditCard:
		return "Credit Card"
	default:
		return "Savings"
	}
}

// ParseAccountType maps a loose label to an AccountType, defaulting to SAVINGS.
func ParseAccountType(s string) AccountType {
	switch AccountType(s) {
	case AccountChecking, AccountCreditCard:
		return AccountType(s)
	}
	return AccountSavings
}

// DetectedAccount holds account metadata read from the statement.
type DetectedAccount struct {
	BankName        string           `json:"bankName"`
	AccountType     AccountType      `json:"accountType"`
	SuggestedName   string           `json:"suggestedName"`
	ReportedBalance *decimal.Decimal `json:"reportedBalance,omitempty"` // nil when the statement states none
	OpeningBalance  *decimal.Decimal `json:"openingBalance,omitempty"`
}

// ParseResult is what every statement parser and the OCR adapter return.
type ParseResult struct {
	Account      DetectedAccount     `json:"account"`
	Transactions []ParsedTransaction `json:"transactions"`
	Confidence   float64             `json:"confidence"`
	SkippedRows  int                 `json:"skippedRows,omitempty"`
}

// DuplicateDetectionResult partitions new transactions into duplicates and unique ones.
type DuplicateDetectionResult struct {
	Duplicates []Transaction `json:"duplicates"`
	Unique     []Transaction `json:"unique"`
}

// SuggestedAccountType is an auxiliary account kind the advisor may propose.
type SuggestedAccountType string

const (
	SuggestCreditCard     SuggestedAccountType = "CREDIT_CARD"
	SuggestCash           SuggestedAccountType = "CASH"
	SuggestInvestment     SuggestedAccountType = "INVESTMENT"
	SuggestSavingsAccount SuggestedAccountType = "SAVINGS_ACCOUNT"
)

// AccountSuggestion proposes creating an auxiliary account.
type AccountSuggestion struct {
	Type         SuggestedAccountType `json:"type"`
	Reason       string               `json:"reason"`
	Transactions []Transaction        `json:"transactions"`
	Confidence   float64              `json:"confidence"`
}

// SuggestedTransaction is a candidate missing transaction proposed during
// reconciliation. It is never committed without user selection.
type SuggestedTransaction struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Confidence  float64         `json:"confidence"`
	Reasoning   string          `json:"reasoning,omitempty"`
}

// ImportAttempt is the audit record written once per import.
type ImportAttempt struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	Source           string    `json:"source"` // csv, ofx, xlsx, ocr
	BankName         string    `json:"bankName,omitempty"`
	TransactionCount int       `json:"transactionCount"`
	Failure          string    `json:"failure,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Succeeded reports whether the attempt produced transactions.
func (a ImportAttempt) Succeeded() bool {
	return a.Failure == ""
}
