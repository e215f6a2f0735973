package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/adeilh/omnikv/backend"
)

const DefaultTable = "omnikv_entries"

var (
	ErrMissingTable = errors.New("postgres: entries table does not exist")
	ErrInvalidTable = errors.New("postgres: invalid table name")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Store persists entries in one PostgreSQL table with a TEXT primary key and
// a BYTEA value column. See Schema for the DDL.
type Store struct {
	db      *sql.DB
	queries queries
}

type queries struct {
	get, upsert, del, exists, keys string
	insertNew, update, condDel     string
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Swapper = (*Store)(nil)
)

// NewStore wraps an existing *sql.DB connection.
func NewStore(db *sql.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("postgres: db is nil")
	}
	cfg := storeConfig{table: DefaultTable}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := validateIdent(cfg.table); err != nil {
		return nil, err
	}
	t := quoteIdent(cfg.table)
	return &Store{db: db, queries: queries{
		get:       `SELECT value FROM ` + t + ` WHERE key = $1`,
		upsert:    `INSERT INTO ` + t + ` (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		del:       `DELETE FROM ` + t + ` WHERE key = $1`,
		exists:    `SELECT EXISTS (SELECT 1 FROM ` + t + ` WHERE key = $1)`,
		keys:      `SELECT key FROM ` + t + ` ORDER BY key`,
		insertNew: `INSERT INTO ` + t + ` (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		update:    `UPDATE ` + t + ` SET value = $3 WHERE key = $1 AND value = $2`,
		condDel:   `DELETE FROM ` + t + ` WHERE key = $1 AND value = $2`,
	}}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.queries.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, s.queries.upsert, key, value)
	return translateError(err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.queries.del, key)
	return translateError(err)
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, s.queries.exists, key).Scan(&ok); err != nil {
		return false, translateError(err)
	}
	return ok, nil
}

// Keys reads the full key set before invoking fn so no rows stay open while
// fn writes to the table.
func (s *Store) Keys(ctx context.Context, fn func(key string) error) error {
	rows, err := s.db.QueryContext(ctx, s.queries.keys)
	if err != nil {
		return translateError(err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			_ = rows.Close()
			return translateError(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return translateError(err)
	}
	if err := rows.Close(); err != nil {
		return translateError(err)
	}

	for _, k := range keys {
		if err := fn(k); err != nil {
			return backend.StopIteration(err)
		}
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch {
	case prev == nil && next == nil:
		ok, err := s.Contains(ctx, key)
		return !ok, err
	case prev == nil:
		res, err = s.db.ExecContext(ctx, s.queries.insertNew, key, next)
	case next == nil:
		res, err = s.db.ExecContext(ctx, s.queries.condDel, key, prev)
	default:
		res, err = s.db.ExecContext(ctx, s.queries.update, key, prev, next)
	}
	if err != nil {
		return false, translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, translateError(err)
	}
	return affected == 1, nil
}

func validateIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", ErrMissingTable, pqErr.Message)
	}
	return fmt.Errorf("postgres: %w", err)
}
