package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/parser"
)

// OCRConfidence is the fixed confidence of a model-read statement.
const OCRConfidence = 0.8

const maxHintLength = 20000

// ErrNoPages is returned when Extract is called without images.
var ErrNoPages = errors.New("no page images to read")

const ocrSystem = "You read bank statements from images and return structured JSON. Respond only with JSON."

const ocrPrompt = `The images are the pages of one bank statement, in order. Read every page and
merge all transactions into a single list. Do not repeat a transaction that
continues across a page break.

Reply with ONLY this JSON object:
{
  "bankName": "<bank name>",
  "accountType": "SAVINGS" | "CHECKING" | "CREDIT_CARD",
  "initialBalance": <number or null>,
  "finalBalance": <number or null>,
  "transactions": [
    {"date": "YYYY-MM-DD", "description": "<text>", "amount": <positive number>, "type": "INCOME" | "EXPENSE"}
  ]
}`

// ocrStatement is the JSON shape requested from the model.
type ocrStatement struct {
	BankName       string           `json:"bankName"`
	AccountType    string           `json:"accountType"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
	FinalBalance   *decimal.Decimal `json:"finalBalance"`
	Transactions   []ocrTransaction `json:"transactions"`
}

type ocrTransaction struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
}

var ocrDateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "2006/01/02", "02-01-2006"}

// OCRAdapter reads page images through the model in one multimodal request.
type OCRAdapter struct {
	oracle    llm.Oracle
	logger    *slog.Logger
	maxTokens int
}

// NewOCRAdapter returns an adapter over oracle.
func NewOCRAdapter(oracle llm.Oracle, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRAdapter{oracle: oracle, logger: logger, maxTokens: 8192}
}

// Extract sends all pages, plus any embedded text as a hint, and maps the
// reply to a ParseResult. Model failures and unreadable replies are fatal.
func (a *OCRAdapter) Extract(ctx context.Context, pages []llm.Image, textHint string) (*models.ParseResult, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	prompt := ocrPrompt
	if hint := strings.TrimSpace(textHint); hint != "" {
		hint = truncate(hint, maxHintLength)
		prompt += "\n\nEmbedded text layer of the document, which may be incomplete:\n" + hint
	}

	reply, err := a.oracle(ctx, llm.Request{
		System:    ocrSystem,
		Prompt:    prompt,
		Images:    pages,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, llm.ErrMalformedResponse) {
			return nil, fmt.Errorf("reading statement images: %w", err)
		}
		return nil, fmt.Errorf("reading statement images: %w: %v", llm.ErrUnavailable, err)
	}

	block, err := llm.ExtractJSONObject(reply)
	if err != nil {
		return nil, err
	}
	var stmt ocrStatement
	if err := json.Unmarshal([]byte(block), &stmt); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}

	result := a.toParseResult(stmt)
	a.logger.Debug("statement read from images",
		"pages", len(pages),
		"bank", result.Account.BankName,
		"transactions", len(result.Transactions),
		"skipped", result.SkippedRows)

	if len(result.Transactions) == 0 {
		return nil, parser.ErrNoTransactions
	}
	return result, nil
}

func (a *OCRAdapter) toParseResult(stmt ocrStatement) *models.ParseResult {
	bank := strings.TrimSpace(stmt.BankName)
	if bank == "" {
		bank = "Unknown bank"
	}
	acctType := models.ParseAccountType(strings.ToUpper(strings.TrimSpace(stmt.AccountType)))

	result := &models.ParseResult{
		Account: models.DetectedAccount{
			BankName:        bank,
			AccountType:     acctType,
			SuggestedName:   fmt.Sprintf("%s %s", bank, acctType.Label()),
			ReportedBalance: stmt.FinalBalance,
			OpeningBalance:  stmt.InitialBalance,
		},
		Confidence: OCRConfidence,
	}

	for _, t := range stmt.Transactions {
		date, ok := parseOCRDate(t.Date)
		if !ok {
			result.SkippedRows++
			continue
		}
		amount := signedAmount(t.Amount, t.Type)
		txn, err := models.NewParsedTransaction(date, amount, strings.Join(strings.Fields(t.Description), " "), t.Description)
		if err != nil {
			result.SkippedRows++
			continue
		}
		result.Transactions = append(result.Transactions, txn)
	}
	return result
}

// signedAmount applies the type tag to the magnitude. Without a usable tag
// the model's own sign is kept.
func signedAmount(amount decimal.Decimal, tag string) decimal.Decimal {
	switch models.TransactionType(strings.ToUpper(strings.TrimSpace(tag))) {
	case models.TypeIncome:
		return amount.Abs()
	case models.TypeExpense:
		return amount.Abs().Neg()
	}
	return amount
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func parseOCRDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range ocrDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Date(t), true
		}
	}
	return time.Time{}, false
}
