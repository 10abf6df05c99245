package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/insightdelivered/statement-import/internal/models"
)

func txn(day int, amount string, desc string) models.Transaction {
	return models.Transaction{
		Date:        time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
	}
}

func TestIsDuplicate(t *testing.T) {
	d := New(DefaultConfig())

	tests := []struct {
		name string
		a, b models.Transaction
		want bool
	}{
		{"identical", txn(5, "-45000", "COMPRA EXITO"), txn(5, "-45000", "COMPRA EXITO"), true},
		{"diacritics", txn(5, "-45000", "Compra en Éxito"), txn(5, "-45000", "Compra en Exito"), true},
		{"one day apart", txn(5, "-45000", "COMPRA EXITO"), txn(6, "-45000", "COMPRA EXITO"), true},
		{"two days apart", txn(5, "-45000", "COMPRA EXITO"), txn(7, "-45000", "COMPRA EXITO"), false},
		{"amount off by a cent", txn(5, "-45000.00", "COMPRA EXITO"), txn(5, "-45000.01", "COMPRA EXITO"), false},
		{"opposite sign", txn(5, "45000", "COMPRA EXITO"), txn(5, "-45000", "COMPRA EXITO"), false},
		{"different merchant", txn(5, "-45000", "COMPRA EXITO"), txn(5, "-45000", "NETFLIX.COM"), false},
		{"scale ignored", txn(5, "-45000", "COMPRA EXITO"), txn(5, "-45000.00", "COMPRA EXITO"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsDuplicate(tt.a, tt.b))
			assert.Equal(t, tt.want, d.IsDuplicate(tt.b, tt.a))
		})
	}
}

func TestFindDuplicates(t *testing.T) {
	d := New(Config{})
	existing := []models.Transaction{
		txn(1, "2000000", "ABONO NOMINA"),
		txn(5, "-45000", "COMPRA EXITO"),
	}

	t.Run("empty new", func(t *testing.T) {
		r := d.FindDuplicates(nil, existing)
		assert.Empty(t, r.Duplicates)
		assert.Empty(t, r.Unique)
		assert.Equal(t, 0.0, CalculateDuplicatePercentage(r))
	})

	t.Run("empty existing", func(t *testing.T) {
		newTxns := []models.Transaction{txn(9, "-1000", "CAFE")}
		r := d.FindDuplicates(newTxns, nil)
		assert.Empty(t, r.Duplicates)
		assert.Equal(t, newTxns, r.Unique)
	})

	t.Run("reimport", func(t *testing.T) {
		r := d.FindDuplicates(existing, existing)
		assert.Len(t, r.Duplicates, 2)
		assert.Empty(t, r.Unique)
		assert.Equal(t, 100.0, CalculateDuplicatePercentage(r))
	})

	t.Run("mixed", func(t *testing.T) {
		r := d.FindDuplicates([]models.Transaction{
			txn(5, "-45000", "Compra Éxito"),
			txn(6, "-12000", "TAXI"),
		}, existing)
		assert.Len(t, r.Duplicates, 1)
		assert.Len(t, r.Unique, 1)
		assert.Equal(t, "TAXI", r.Unique[0].Description)
		assert.Equal(t, 50.0, CalculateDuplicatePercentage(r))
	})
}

func TestFilterParsed(t *testing.T) {
	d := New(DefaultConfig())
	existing := []models.Transaction{txn(5, "-45000", "COMPRA EXITO")}

	parse := func(day int, amount, desc string) models.ParsedTransaction {
		p, err := models.NewParsedTransaction(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC), decimal.RequireFromString(amount), desc, "  "+desc+"  ")
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	parsed := []models.ParsedTransaction{
		parse(4, "-12000", "TAXI"),
		parse(5, "-45000", "Compra Éxito"),
		parse(6, "300000", "TRANSFERENCIA"),
	}

	unique, r := d.FilterParsed(parsed, existing)
	assert.Equal(t, []models.ParsedTransaction{parsed[0], parsed[2]}, unique)
	assert.Equal(t, d.FindDuplicates(models.Comparable(parsed), existing), r)
	assert.Len(t, r.Duplicates, 1)
	assert.InDelta(t, 33.33, CalculateDuplicatePercentage(r), 0.01)
}
