package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"donationledger/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Postgres SQLSTATE codes the store translates into error kinds.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgNumericOutOfRange   = "22003"
)

// wrapError tags a driver error with its ledger error kind. Constraint
// violations are caller mistakes; everything else means the database could
// not serve the request. Caller cancellation is passed through untagged.
func wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", msg, types.ErrInvalidReference, pgErr.ConstraintName)
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", msg, types.ErrConflict, pgErr.ConstraintName)
		case pgCheckViolation, pgNotNullViolation, pgNumericOutOfRange:
			return fmt.Errorf("%s: %w: %s", msg, types.ErrValidation, pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("%s: %w: %w", msg, types.ErrUnavailable, err)
}

// buildUpdateClause creates the SET clause for ON CONFLICT DO UPDATE
// e.g., "slug = EXCLUDED.slug, title = EXCLUDED.title, ..."
func buildUpdateClause(fields map[string]any) string {
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, field := range names {
		parts = append(parts, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	return strings.Join(parts, ", ")
}

func returning(columns []string) string {
	return "RETURNING " + strings.Join(columns, ", ")
}
