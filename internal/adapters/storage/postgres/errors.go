package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// SQLSTATE codes treated as write conflicts.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapError wraps unique violations and serialization failures with
// ports.ErrConflict. Missing rows become *domain.NotFoundError for resource;
// everything else is returned unchanged.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ports.ErrConflict) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFoundError(resource)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", ports.ErrConflict, err)
		}
	}

	return err
}
