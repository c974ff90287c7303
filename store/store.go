// Package store is the persistence layer behind the editor. It exposes a small
// per-table CRUD surface (select, insert, update, delete, upsert) built with
// bun over database/sql and classifies driver errors so callers can tell a missing row
// from a missing table from a genuine failure.
//
// Two backends are supported: SQLite (modernc.org/sqlite, the default) and
// Postgres (pgx through its database/sql adapter).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// Table names a logical table.
type Table string

const (
	Layouts Table = "section_layouts"
	Content Table = "section_content"
	Images  Table = "images"
)

// Querier is the contract the editor repositories consume.
type Querier interface {
	Select(ctx context.Context, table Table, q Query, scan func(Scanner) error) error
	Insert(ctx context.Context, table Table, v Values) error
	Update(ctx context.Context, table Table, where []Filter, patch Values) (int64, error)
	Delete(ctx context.Context, table Table, where []Filter) (int64, error)
	Upsert(ctx context.Context, table Table, v Values, conflict ...string) error
}

// Scanner is satisfied by *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// DB wraps a bun handle configured with the dialect of its backend.
type DB struct {
	db *bun.DB
}

var _ Querier = (*DB)(nil)

// Open opens a store for the given driver ("sqlite" or "postgres") and DSN.
// For SQLite the DSN is a file path; the parent directory is created and the
// schema is ensured. Postgres schemas are managed by Migrate.
func Open(driver, dsn string) (*DB, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return openSQLite(dsn)
	case "postgres", "pgx", "postgresql":
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &DB{db: bun.NewDB(db, sqlitedialect.New())}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return s, nil
}

func openPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &DB{db: bun.NewDB(db, pgdialect.New())}, nil
}

// Close closes the underlying database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Exec runs a raw statement. It exists for schema work and tests.
func (s *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Select runs q against table and calls scan once per row.
func (s *DB) Select(ctx context.Context, table Table, q Query, scan func(Scanner) error) error {
	rows, err := buildSelect(s.db, table, q).Rows(ctx)
	if err != nil {
		return classify("select", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return classify("select", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return classify("select", table, err)
	}
	return nil
}

// Insert adds one row.
func (s *DB) Insert(ctx context.Context, table Table, v Values) error {
	if _, err := buildInsert(s.db, table, v).Exec(ctx); err != nil {
		return classify("insert", table, err)
	}
	return nil
}

// Update applies patch to every row matching where and reports rows affected.
func (s *DB) Update(ctx context.Context, table Table, where []Filter, patch Values) (int64, error) {
	if len(patch) == 0 {
		return 0, nil
	}
	res, err := buildUpdate(s.db, table, where, patch).Exec(ctx)
	if err != nil {
		return 0, classify("update", table, err)
	}
	return rowsAffected(res), nil
}

// Delete removes every row matching where and reports rows affected.
func (s *DB) Delete(ctx context.Context, table Table, where []Filter) (int64, error) {
	res, err := buildDelete(s.db, table, where).Exec(ctx)
	if err != nil {
		return 0, classify("delete", table, err)
	}
	return rowsAffected(res), nil
}

// Upsert inserts v or, when a row with the same conflict columns exists,
// overwrites its remaining columns.
func (s *DB) Upsert(ctx context.Context, table Table, v Values, conflict ...string) error {
	if len(conflict) == 0 {
		return fmt.Errorf("store: upsert into %s needs conflict columns", table)
	}
	if _, err := buildUpsert(s.db, table, v, conflict).Exec(ctx); err != nil {
		return classify("upsert", table, err)
	}
	return nil
}

func rowsAffected(res sql.Result) int64 {
	n, _ := res.RowsAffected()
	return n
}
