package llm

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-import/internal/models"
)

func parsedTxns(n int) []models.ParsedTransaction {
	out := make([]models.ParsedTransaction, 0, n)
	for i := 0; i < n; i++ {
		t, _ := models.NewParsedTransaction(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(int64(-1000-i)), fmt.Sprintf("COMPRA %d", i), "")
		out = append(out, t)
	}
	return out
}

func TestCategorize_Batches(t *testing.T) {
	calls := 0
	oracle := func(_ context.Context, req Request) (string, error) {
		calls++
		assert.Contains(t, req.Prompt, "Mercado")
		var parts []string
		for i := 0; i < 120; i++ {
			if strings.Contains(req.Prompt, fmt.Sprintf("\n%d. COMPRA %d |", i, i)) {
				parts = append(parts, fmt.Sprintf(`{"index":%d,"category":"mercado","confidence":0.8}`, i))
			}
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	}

	c := NewCategorizer(oracle, 0, nil)
	got, err := c.Categorize(context.Background(), parsedTxns(120), []string{"Mercado", "Transporte"})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	require.Len(t, got, 120)
	for i, g := range got {
		assert.Equal(t, i, g.Index)
		assert.Equal(t, "Mercado", g.Category)
		assert.Equal(t, 0.8, g.Confidence)
	}
}

func TestCategorize_MalformedBatchDegrades(t *testing.T) {
	calls := 0
	oracle := func(_ context.Context, _ Request) (string, error) {
		calls++
		if calls == 1 {
			return "sorry, I cannot help", nil
		}
		return `[{"index":2,"category":"Transporte","confidence":0.9},{"index":3,"category":"Unknown","confidence":0.9},{"index":2,"category":"Transporte","confidence":7}]`, nil
	}

	c := NewCategorizer(oracle, 2, nil)
	got, err := c.Categorize(context.Background(), parsedTxns(4), []string{"Transporte"})
	require.NoError(t, err)

	assert.Equal(t, Categorization{Index: 0}, got[0])
	assert.Equal(t, Categorization{Index: 1}, got[1])
	assert.Equal(t, Categorization{Index: 2, Category: "Transporte", Confidence: 0.9}, got[2])
	assert.Equal(t, Categorization{Index: 3}, got[3])
}

func TestCategorize_TransportFailure(t *testing.T) {
	oracle := func(_ context.Context, _ Request) (string, error) {
		return "", fmt.Errorf("%w: connection refused", ErrUnavailable)
	}
	_, err := NewCategorizer(oracle, 0, nil).Categorize(context.Background(), parsedTxns(3), []string{"A"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCategorize_NothingToDo(t *testing.T) {
	oracle := func(_ context.Context, _ Request) (string, error) {
		t.Fatal("oracle should not be called")
		return "", nil
	}
	c := NewCategorizer(oracle, 0, nil)

	got, err := c.Categorize(context.Background(), nil, []string{"A"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.Categorize(context.Background(), parsedTxns(2), nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
