package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lllypuk/creatordash/internal/domain/errs"
)

// SQLSTATE classes the database answers with for bad requests rather than outages.
var rejectedClasses = map[string]struct{}{
	"22": {}, // data exception
	"23": {}, // integrity constraint violation
	"42": {}, // syntax error or access rule violation
}

// HandlePgError maps a driver error onto the backend error classes:
//   - errs.ErrNotFound when no row came back
//   - errs.ErrBackendRejected for data, constraint and schema errors
//   - errs.ErrBackendUnavailable otherwise
func HandlePgError(err error, object string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", object, errs.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		if _, ok := rejectedClasses[pgErr.Code[:2]]; ok {
			return fmt.Errorf("%w: %s: %w", errs.ErrBackendRejected, object, err)
		}
	}

	return errs.Unavailable(fmt.Errorf("failed to operate on %s: %w", object, err))
}
