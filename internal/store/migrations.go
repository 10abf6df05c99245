package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version     int
	description string
	queries     []string
}

var migrations = []migration{
	{
		version:     1,
		description: "import audit trail",
		queries: []string{
			`CREATE TABLE IF NOT EXISTS import_attempts (
				id TEXT PRIMARY KEY,
				filename TEXT NOT NULL,
				source TEXT NOT NULL DEFAULT '',
				bank_name TEXT NOT NULL DEFAULT '',
				transaction_count INTEGER NOT NULL DEFAULT 0,
				failure TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_import_attempts_created ON import_attempts(created_at)`,
		},
	},
	{
		version:     2,
		description: "account transactions",
		queries: []string{
			`CREATE TABLE IF NOT EXISTS transactions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id TEXT NOT NULL,
				date TEXT NOT NULL,
				amount TEXT NOT NULL,
				type TEXT NOT NULL,
				description TEXT NOT NULL,
				raw_description TEXT NOT NULL DEFAULT '',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, date)`,
		},
	},
}

// migrate applies every migration newer than the stored schema version.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}

func (s *SQLiteStore) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range m.queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion reports the applied schema version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}
