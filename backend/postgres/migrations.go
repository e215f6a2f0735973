package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// ApplyMigrations executes the provided SQL statements in order within the given context.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// Schema returns the DDL creating the entries table.
func Schema(table string) (string, error) {
	if err := validateIdent(table); err != nil {
		return "", err
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    key   TEXT PRIMARY KEY,
    value BYTEA NOT NULL
)`, quoteIdent(table)), nil
}

// Migrate creates the entries table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB, table string) error {
	stmt, err := Schema(table)
	if err != nil {
		return err
	}
	return ApplyMigrations(ctx, db, stmt)
}
