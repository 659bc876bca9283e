package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes reported as conflicts.
var conflictCodes = map[string]string{
	"23505": "unique violation",
	"40001": "serialization failure",
	"40P01": "deadlock detected",
}

// MapError translates database errors to domain errors. sql.ErrNoRows
// becomes notFoundErr. Unique violations, serialization failures, and
// deadlocks wrap conflictErr. Anything else is returned unchanged.
func MapError(err error, notFoundErr, conflictErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	if errors.Is(err, conflictErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := conflictCodes[pgErr.Code]; ok {
			if pgErr.ConstraintName != "" {
				reason += " on " + pgErr.ConstraintName
			}
			return fmt.Errorf("%w: %s", conflictErr, reason)
		}
	}

	return err
}
