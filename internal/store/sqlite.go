// Package store persists the import audit trail and committed account
// transactions in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const dateLayout = "2006-01-02"

// ErrEmptyAccountID is returned when a transaction write names no account.
var ErrEmptyAccountID = errors.New("account id is required")

// SQLiteStore implements the importer's TransactionSource and AuditRecorder.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordAttempt appends one audit record.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, a models.ImportAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_attempts (id, filename, source, bank_name, transaction_count, failure, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Filename, a.Source, a.BankName, a.TransactionCount, a.Failure, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record import attempt: %w", err)
	}
	return nil
}

// Attempts returns the most recent audit records, newest first.
func (s *SQLiteStore) Attempts(ctx context.Context, limit int) ([]models.ImportAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, source, bank_name, transaction_count, failure, created_at
		 FROM import_attempts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import attempts: %w", err)
	}
	defer rows.Close()

	var out []models.ImportAttempt
	for rows.Next() {
		var a models.ImportAttempt
		if err := rows.Scan(&a.ID, &a.Filename, &a.Source, &a.BankName, &a.TransactionCount, &a.Failure, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendTransactions commits txns to accountID in one database transaction.
func (s *SQLiteStore) AppendTransactions(ctx context.Context, accountID string, txns []models.ParsedTransaction) error {
	if accountID == "" {
		return ErrEmptyAccountID
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (account_id, date, amount, type, description, raw_description)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txns {
		if _, err := stmt.ExecContext(ctx, accountID, t.Date.Format(dateLayout), t.Amount.String(), string(t.Type), t.Description, t.RawDescription); err != nil {
			return fmt.Errorf("failed to insert transaction %q: %w", t.Description, err)
		}
	}
	return tx.Commit()
}

// AccountTransactions returns everything committed to accountID, oldest first.
func (s *SQLiteStore) AccountTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, amount, description FROM transactions WHERE account_id = ? ORDER BY date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var date, amount, desc string
		if err := rows.Scan(&date, &amount, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad stored date %q: %w", date, err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad stored amount %q: %w", amount, err)
		}
		out = append(out, models.Transaction{Date: d, Amount: amt, Description: desc})
	}
	return out, rows.Err()
}
