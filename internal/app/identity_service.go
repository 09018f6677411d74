// Package app contains application services that orchestrate use cases.
// This is the application layer in Clean Architecture - it coordinates
// domain logic and infrastructure through ports.
//
// What does NOT belong here:
//   - HTTP specifics (that's adapters/http)
//   - Database queries (that's adapters/storage)
//   - Error rendering and logging of failures (that's the error translator)
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/slug"
	"github.com/jsamuelsen/devflow-identity/internal/platform/telemetry"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// conflictResource names the record set in commit-conflict messages.
const conflictResource = "Identity"

// IdentityService reconciles an external provider identity with the local
// user and account records.
type IdentityService struct {
	store  ports.IdentityStore
	events ports.EventPublisher
	logger *slog.Logger
}

// IdentityServiceConfig contains the dependencies of IdentityService.
type IdentityServiceConfig struct {
	Store ports.IdentityStore

	// Events is optional; nothing is published when nil.
	Events ports.EventPublisher
	Logger *slog.Logger
}

// NewIdentityService creates an identity service. It panics when no store is
// given.
func NewIdentityService(cfg IdentityServiceConfig) *IdentityService {
	if cfg.Store == nil {
		panic("app: IdentityService requires a store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IdentityService{
		store:  cfg.Store,
		events: cfg.Events,
		logger: logger.With(slog.String("component", "app.IdentityService")),
	}
}

// reconciliation records what a committed sign-in created.
type reconciliation struct {
	user           *domain.User
	account        *domain.Account
	userCreated    bool
	userUpdated    bool
	accountCreated bool
}

// SignInWithOAuth links the provider identity in in to a local user,
// creating the user and the account as needed, in a single transaction.
//
// Repeating a call with the same payload is a no-op after the first commit.
// Concurrent calls for the same email or identity never produce duplicates:
// the losers fail with a retryable *domain.RequestError (409). A username
// already held by another user fails with a non-retryable 409.
func (s *IdentityService) SignInWithOAuth(ctx context.Context, in domain.OAuthSignIn) error {
	if err := in.Validate(); err != nil {
		telemetry.RecordReconciliation(telemetry.OutcomeInvalid)
		return err
	}

	username := usernameSlug(in.User.Username)
	if username == "" {
		telemetry.RecordReconciliation(telemetry.OutcomeInvalid)
		return domain.NewValidationError("user.username", "must contain letters or digits")
	}

	ctx, span := telemetry.StartSpan(ctx, "IdentityService.SignInWithOAuth",
		attribute.String("identity.provider", in.Provider),
	)

	var result reconciliation

	err := s.store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		r, err := reconcile(ctx, tx, in, username)
		if err != nil {
			return err
		}

		result = r

		return nil
	})
	if err != nil {
		err = transactionFailure(err)
		telemetry.RecordReconciliation(telemetry.StoreOutcome(err, ports.ErrConflict))
		telemetry.EndSpan(span, err)

		return err
	}

	telemetry.RecordReconciliation(telemetry.OutcomeSuccess)
	telemetry.EndSpan(span, nil)

	s.logger.InfoContext(ctx, "identity reconciled",
		slog.String("user_id", result.user.ID),
		slog.String("account_id", result.account.ID),
		slog.String("provider", in.Provider),
		slog.Bool("user_created", result.userCreated),
		slog.Bool("user_updated", result.userUpdated),
		slog.Bool("account_created", result.accountCreated),
	)

	s.publish(ctx, result)

	return nil
}

func reconcile(ctx context.Context, tx ports.IdentityTx, in domain.OAuthSignIn, username string) (reconciliation, error) {
	var r reconciliation

	user, err := tx.FindUserByEmail(ctx, in.User.Email)

	switch {
	case err == nil:
		changes := domain.DiffProfile(user, in.User)
		if !changes.Empty() {
			if err := tx.UpdateUserProfile(ctx, user.ID, changes); err != nil {
				return r, fmt.Errorf("updating user profile: %w", err)
			}

			changes.Apply(user)
			r.userUpdated = true
		}
	case domain.IsNotFound(err):
		if err := ensureUsernameFree(ctx, tx, username); err != nil {
			return r, err
		}

		user = &domain.User{
			Name:     in.User.Name,
			Username: username,
			Email:    in.User.Email,
			Image:    in.User.Image,
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			return r, fmt.Errorf("creating user: %w", err)
		}

		r.userCreated = true
	default:
		return r, fmt.Errorf("finding user by email: %w", err)
	}

	r.user = user

	account, err := tx.FindAccount(ctx, user.ID, in.Identity())

	switch {
	case err == nil:
	case domain.IsNotFound(err):
		account = &domain.Account{
			UserID:            user.ID,
			Name:              in.User.Name,
			Image:             in.User.Image,
			Provider:          in.Provider,
			ProviderAccountID: in.ProviderAccountID,
		}

		if err := tx.CreateAccount(ctx, account); err != nil {
			return r, fmt.Errorf("creating account: %w", err)
		}

		r.accountCreated = true
	default:
		return r, fmt.Errorf("finding account: %w", err)
	}

	r.account = account

	return r, nil
}

// maxUsernameLength matches the username rule on the inbound payloads. Folding
// can lengthen a name ("ß" becomes "ss"), so the slug is capped again.
const maxUsernameLength = 50

// usernameSlug returns the stored form of a display username.
func usernameSlug(username string) string {
	return slug.Make(username, slug.MaxLength(maxUsernameLength))
}

// ensureUsernameFree rejects a new user whose slug is held by a committed
// user. A race on a free username still surfaces at commit as ErrConflict.
func ensureUsernameFree(ctx context.Context, tx ports.IdentityTx, username string) error {
	_, err := tx.FindUserByUsername(ctx, username)

	switch {
	case err == nil:
		return usernameTaken()
	case domain.IsNotFound(err):
		return nil
	default:
		return fmt.Errorf("finding user by username: %w", err)
	}
}

// usernameTaken is permanent for the caller, so it is not retryable.
func usernameTaken() error {
	return domain.NewRequestError(http.StatusConflict, "Username already exists")
}

// transactionFailure maps an aborted transaction to the error taxonomy.
func transactionFailure(err error) error {
	if errors.Is(err, ports.ErrConflict) {
		return domain.NewConflictError(conflictResource, err)
	}

	return domain.Classify(fmt.Errorf("reconciling identity: %w", err))
}

// publish emits creation events. Failures are logged and dropped: the
// transaction has already committed.
func (s *IdentityService) publish(ctx context.Context, r reconciliation) {
	if s.events == nil {
		return
	}

	var events []ports.Event
	if r.userCreated {
		events = append(events, userCreated(r.user))
	}

	if r.accountCreated {
		events = append(events, accountLinked(r.account))
	}

	for _, event := range events {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish identity event",
				slog.String("event_type", event.EventType()),
				slog.Any("error", err),
			)
		}
	}
}
