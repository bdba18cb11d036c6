package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// code runs inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isRetryable reports whether a transaction failed only because it lost a
// race with a concurrent one.
func isRetryable(err error) bool {
	c := pgCode(err)
	return c == codeSerializationFailure || c == codeDeadlockDetected
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// insertErr maps a unique violation to domain.ErrConflict.
func insertErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%s: already exists: %w", msg, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execVersioned runs a versioned UPDATE. Zero affected rows means the row is
// gone or its version moved; exists tells the two apart.
func execVersioned(ctx context.Context, q querier, tag pgconn.CommandTag, err error, table, id string) error {
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	// table is one of a fixed set of identifiers, never user input.
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE "+keyColumn(table)+" = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	if !exists {
		return fmt.Errorf("update %s %s: %w", table, id, domain.ErrNotFound)
	}
	return domain.Conflictf("%s %s was modified concurrently", table, id)
}

func keyColumn(table string) string {
	if table == "balances" {
		return "owner"
	}
	return "id"
}

// parseDecimal reads a NUMERIC column selected as text.
func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
