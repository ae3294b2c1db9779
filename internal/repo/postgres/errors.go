package postgres

import (
	"errors"
	"strings"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// mapErr turns unique-constraint violations into ConflictErrors.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &domain.ConflictError{Field: conflictField(pgErr.ConstraintName)}
	}
	return err
}

// conflictField extracts the column from a "<table>_<column>_key" constraint name.
func conflictField(constraint string) string {
	for _, table := range []string{"admins_", "hosts_", "gates_", "visitors_"} {
		if rest, ok := strings.CutPrefix(constraint, table); ok {
			return strings.TrimSuffix(rest, "_key")
		}
	}
	if constraint == "" {
		return "record"
	}
	return constraint
}
