package mongo

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	codeWriteConflict         = 112
)

// mapError wraps duplicate keys and transaction write conflicts with
// ports.ErrConflict. Missing documents become *domain.NotFoundError for
// resource; everything else is returned unchanged.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ports.ErrConflict) {
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.NewNotFoundError(resource)
	}

	if isConflict(err) {
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	}

	return err
}

func isConflict(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorLabel(labelTransientTransaction) || serverErr.HasErrorCode(codeWriteConflict)
	}

	return false
}
