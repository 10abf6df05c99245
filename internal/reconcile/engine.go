// Package reconcile resolves gaps between a statement's reported balance and
// the sum of its parsed transactions.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/models"
)

// Config holds reconciliation thresholds, in account currency.
type Config struct {
	Epsilon                decimal.Decimal
	NegligibleThreshold    decimal.Decimal
	ValidityTolerance      decimal.Decimal
	MaxContextTransactions int
	MaxSuggestions         int
}

// DefaultConfig returns the thresholds used for COP statements.
func DefaultConfig() Config {
	return Config{
		Epsilon:                decimal.RequireFromString("0.01"),
		NegligibleThreshold:    decimal.NewFromInt(100),
		ValidityTolerance:      decimal.NewFromInt(1000),
		MaxContextTransactions: 50,
		MaxSuggestions:         5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Epsilon.IsZero() {
		c.Epsilon = def.Epsilon
	}
	if c.NegligibleThreshold.IsZero() {
		c.NegligibleThreshold = def.NegligibleThreshold
	}
	if c.ValidityTolerance.IsZero() {
		c.ValidityTolerance = def.ValidityTolerance
	}
	if c.MaxContextTransactions <= 0 {
		c.MaxContextTransactions = def.MaxContextTransactions
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = def.MaxSuggestions
	}
	return c
}

// Engine opens reconciliation sessions and asks the model for missing rows.
type Engine struct {
	cfg    Config
	oracle llm.Oracle
	logger *slog.Logger
}

// New returns an Engine. oracle may be nil, in which case FindWithAI yields
// no suggestions.
func New(cfg Config, oracle llm.Oracle, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), oracle: oracle, logger: logger}
}

// Config returns the effective thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start evaluates a freshly parsed statement. Appends to existing accounts,
// statements without a reported balance, and gaps under the negligible
// threshold never need reconciliation.
func (e *Engine) Start(account models.DetectedAccount, txns []models.ParsedTransaction, isNewAccount bool) *Session {
	calculated := models.Sum(txns)
	if account.OpeningBalance != nil {
		calculated = calculated.Add(*account.OpeningBalance)
	}

	s := &Session{
		engine:       e,
		state:        StateNotRequired,
		Calculated:   calculated,
		Transactions: txns,
	}
	if account.ReportedBalance == nil || !isNewAccount {
		return s
	}

	s.Reported = *account.ReportedBalance
	s.Difference = s.Reported.Sub(calculated)

	gap := s.Difference.Abs()
	if gap.LessThanOrEqual(e.cfg.Epsilon) || gap.LessThan(e.cfg.NegligibleThreshold) {
		return s
	}
	s.state = StateAwaitingMethod
	return s
}

// suggest asks the model for transactions that would explain the gap. Any
// failure yields an empty list.
func (e *Engine) suggest(ctx context.Context, s *Session) []models.SuggestedTransaction {
	if e.oracle == nil {
		return []models.SuggestedTransaction{}
	}

	reply, err := e.oracle(ctx, llm.Request{
		System: "You help reconcile bank statements. Respond only with a JSON array.",
		Prompt: e.prompt(s),
	})
	if err != nil {
		e.logger.Warn("reconciliation suggestions unavailable", "error", err)
		return []models.SuggestedTransaction{}
	}

	block, err := llm.ExtractJSONArray(reply)
	if err != nil {
		e.logger.Warn("reconciliation suggestions unreadable", "error", err)
		return []models.SuggestedTransaction{}
	}
	var raw []rawSuggestion
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		e.logger.Warn("reconciliation suggestions unreadable", "error", err)
		return []models.SuggestedTransaction{}
	}

	out := make([]models.SuggestedTransaction, 0, len(raw))
	for _, r := range raw {
		st, err := r.validate()
		if err != nil {
			e.logger.Debug("dropping suggestion", "description", r.Description, "reason", err)
			continue
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > e.cfg.MaxSuggestions {
		out = out[:e.cfg.MaxSuggestions]
	}
	return out
}

func (e *Engine) prompt(s *Session) string {
	recent := append([]models.ParsedTransaction(nil), s.Transactions...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })
	if len(recent) > e.cfg.MaxContextTransactions {
		recent = recent[:e.cfg.MaxContextTransactions]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The bank reports a balance of %s but the imported transactions add up to %s (difference %s).\n",
		s.Reported.StringFixed(2), s.Calculated.StringFixed(2), s.Difference.StringFixed(2))
	b.WriteString("Most recent imported transactions:\n")
	for _, t := range recent {
		fmt.Fprintf(&b, "- %s | %s | %s\n", t.Date.Format("2006-01-02"), t.Description, t.Amount.StringFixed(2))
	}
	fmt.Fprintf(&b, `
Suggest up to %d transactions that are likely missing and would explain the difference.
Reply with a JSON array only:
[{"date": "YYYY-MM-DD", "description": "<text>", "amount": <positive number>, "type": "INCOME" | "EXPENSE", "confidence": <0.0-1.0>, "reasoning": "<short>"}]`,
		e.cfg.MaxSuggestions)
	return b.String()
}

type rawSuggestion struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Confidence  float64         `json:"confidence"`
	Reasoning   string          `json:"reasoning"`
}

var errInvalidSuggestion = errors.New("invalid suggestion")

func (r rawSuggestion) validate() (models.SuggestedTransaction, error) {
	if strings.TrimSpace(r.Description) == "" {
		return models.SuggestedTransaction{}, fmt.Errorf("%w: missing description", errInvalidSuggestion)
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date))
	if err != nil {
		return models.SuggestedTransaction{}, fmt.Errorf("%w: bad date %q", errInvalidSuggestion, r.Date)
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		return models.SuggestedTransaction{}, fmt.Errorf("%w: confidence %v", errInvalidSuggestion, r.Confidence)
	}
	typ := models.TransactionType(strings.ToUpper(strings.TrimSpace(r.Type)))
	if !typ.Valid() {
		return models.SuggestedTransaction{}, fmt.Errorf("%w: type %q", errInvalidSuggestion, r.Type)
	}
	if r.Amount.IsZero() {
		return models.SuggestedTransaction{}, fmt.Errorf("%w: zero amount", errInvalidSuggestion)
	}

	amount := r.Amount.Abs()
	if typ == models.TypeExpense {
		amount = amount.Neg()
	}
	return models.SuggestedTransaction{
		Date:        models.Date(date),
		Description: strings.TrimSpace(r.Description),
		Amount:      amount,
		Type:        typ,
		Confidence:  r.Confidence,
		Reasoning:   r.Reasoning,
	}, nil
}
