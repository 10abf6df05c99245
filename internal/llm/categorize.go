package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/insightdelivered/statement-import/internal/models"
)

// DefaultBatchSize is how many transactions go into one categorization prompt.
const DefaultBatchSize = 50

const categorizeSystem = "You categorize personal bank transactions. Respond only with a JSON array."

// Categorization is the category assigned to the transaction at Index.
// A zero Confidence with an empty Category means the model gave no answer.
type Categorization struct {
	Index      int     `json:"index"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Categorizer assigns user categories to transactions in batches.
type Categorizer struct {
	oracle    Oracle
	batchSize int
	logger    *slog.Logger
}

// NewCategorizer returns a Categorizer. batchSize <= 0 uses DefaultBatchSize.
func NewCategorizer(oracle Oracle, batchSize int, logger *slog.Logger) *Categorizer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{oracle: oracle, batchSize: batchSize, logger: logger}
}

// Categorize returns one entry per transaction, in order. A transport
// failure aborts with ErrUnavailable; a batch whose reply cannot be read is
// left uncategorized and the remaining batches still run.
func (c *Categorizer) Categorize(ctx context.Context, txns []models.ParsedTransaction, categories []string) ([]Categorization, error) {
	out := make([]Categorization, len(txns))
	for i := range out {
		out[i].Index = i
	}
	if len(txns) == 0 || len(categories) == 0 {
		return out, nil
	}

	allowed := make(map[string]string, len(categories))
	for _, cat := range categories {
		allowed[strings.ToLower(cat)] = cat
	}

	for start := 0; start < len(txns); start += c.batchSize {
		end := min(start+c.batchSize, len(txns))

		reply, err := c.oracle(ctx, Request{
			System: categorizeSystem,
			Prompt: categorizePrompt(txns[start:end], start, categories),
		})
		if err != nil {
			if errors.Is(err, ErrMalformedResponse) {
				c.logger.Warn("categorization batch unreadable", "start", start, "error", err)
				continue
			}
			return nil, fmt.Errorf("categorizing transactions %d-%d: %w", start, end-1, err)
		}

		entries, err := decodeCategorizations(reply)
		if err != nil {
			c.logger.Warn("categorization batch unreadable", "start", start, "error", err)
			continue
		}
		for _, e := range entries {
			if e.Index < start || e.Index >= end {
				continue
			}
			name, ok := allowed[strings.ToLower(strings.TrimSpace(e.Category))]
			if !ok || e.Confidence < 0 || e.Confidence > 1 {
				continue
			}
			out[e.Index] = Categorization{Index: e.Index, Category: name, Confidence: e.Confidence}
		}
	}
	return out, nil
}

func categorizePrompt(batch []models.ParsedTransaction, offset int, categories []string) string {
	var b strings.Builder
	b.WriteString("Available categories:\n")
	for _, cat := range categories {
		fmt.Fprintf(&b, "- %s\n", cat)
	}
	b.WriteString("\nTransactions:\n")
	for i, t := range batch {
		fmt.Fprintf(&b, "%d. %s | %s | %s\n", offset+i, t.Description, t.Amount.StringFixed(2), t.Type)
	}
	b.WriteString(`
Assign each transaction exactly one of the available categories.
Reply with a JSON array only, one object per transaction:
[{"index": <number>, "category": "<category>", "confidence": <0.0-1.0>}]`)
	return b.String()
}

func decodeCategorizations(reply string) ([]Categorization, error) {
	block, err := ExtractJSONArray(reply)
	if err != nil {
		return nil, err
	}
	var entries []Categorization
	if err := json.Unmarshal([]byte(block), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return entries, nil
}
