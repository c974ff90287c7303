package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Code classifies a store failure.
type Code int

const (
	CodeUnknown Code = iota
	// CodeNoRows means the query matched nothing.
	CodeNoRows
	// CodeUndefinedTable means the relation has not been provisioned.
	CodeUndefinedTable
	// CodeUniqueViolation means an insert hit a unique constraint.
	CodeUniqueViolation
)

func (c Code) String() string {
	switch c {
	case CodeNoRows:
		return "no_rows"
	case CodeUndefinedTable:
		return "undefined_table"
	case CodeUniqueViolation:
		return "unique_violation"
	default:
		return "unknown"
	}
}

// Postgres SQLSTATE codes.
const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

// Error is returned by every DB method that fails.
type Error struct {
	Code  Code
	Op    string
	Table Table
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func classify(op string, table Table, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeOf(err), Op: op, Table: table, Err: err}
}

// CodeOf inspects err (and anything it wraps) and reports its Code.
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, sql.ErrNoRows) {
		return CodeNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return CodeUndefinedTable
		case pgUniqueViolation:
			return CodeUniqueViolation
		}
		return CodeUnknown
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return CodeUniqueViolation
		}
	}
	// SQLite reports a missing table as a generic SQLITE_ERROR.
	if strings.Contains(strings.ToLower(err.Error()), "no such table") {
		return CodeUndefinedTable
	}
	return CodeUnknown
}

// IsNoRows reports whether err means nothing matched.
func IsNoRows(err error) bool { return CodeOf(err) == CodeNoRows }

// IsUnprovisioned reports whether err means the table does not exist.
func IsUnprovisioned(err error) bool { return CodeOf(err) == CodeUndefinedTable }

// IsConflict reports whether err is a unique-constraint violation.
func IsConflict(err error) bool { return CodeOf(err) == CodeUniqueViolation }
