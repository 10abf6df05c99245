package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"
)

// CSVWriter writes normalized transactions to CSV format.
type CSVWriter struct {
	IncludeHeader bool
	// Categories, when set, adds a Category column; entry i belongs to
	// transaction i.
	Categories []string
}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, account models.DetectedAccount, txns []models.ParsedTransaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	if err := w.Write(f, account, txns); err != nil {
		return err
	}
	return f.Close()
}

// Write writes transactions in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, account models.DetectedAccount, txns []models.ParsedTransaction) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		meta := [][]string{
			{"# Bank", account.BankName},
			{"# Account Type", string(account.AccountType)},
			{"# Opening Balance", formatBalance(account.OpeningBalance)},
			{"# Reported Balance", formatBalance(account.ReportedBalance)},
		}
		for _, m := range meta {
			if m[1] == "" {
				continue
			}
			if err := writer.Write(m); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	header := []string{"Date", "Description", "Type", "Amount"}
	if w.Categories != nil {
		header = append(header, "Category")
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, txn := range txns {
		row := []string{
			txn.Date.Format("2006-01-02"),
			txn.Description,
			string(txn.Type),
			txn.Amount.StringFixed(2),
		}
		if w.Categories != nil {
			var cat string
			if i < len(w.Categories) {
				cat = w.Categories[i]
			}
			row = append(row, cat)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatBalance(b *decimal.Decimal) string {
	if b == nil {
		return ""
	}
	return b.StringFixed(2)
}
