package mongodb

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/lllypuk/creatordash/internal/domain/errs"
)

// HandleMongoError maps a driver error onto the backend error classes:
//   - nil if err == nil
//   - errs.ErrNotFound if no document matched
//   - errs.ErrBackendRejected on a unique constraint violation
//   - errs.ErrBackendUnavailable otherwise
func HandleMongoError(err error, collection string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", collection, errs.ErrNotFound)
	}

	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s: %w", errs.ErrBackendRejected, collection, err)
	}

	return errs.Unavailable(fmt.Errorf("failed to operate on %s: %w", collection, err))
}
