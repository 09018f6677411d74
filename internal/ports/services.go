// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port conventions:
//   - Context is always the first parameter
//   - Methods return domain types, never driver or wire types
//   - A missing record is a *domain.NotFoundError; a uniqueness violation or
//     write conflict surfaces as ErrConflict wrapped with the driver error
package ports

import (
	"context"
	"errors"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// ErrConflict is wrapped by store adapters when a write violates a unique
// index or loses a write conflict. The application layer maps it to a
// retryable *domain.RequestError.
var ErrConflict = errors.New("storage conflict")

// IdentityStore opens session-scoped transactions over users and accounts.
//
// WithinTransaction runs fn inside a single transaction. The transaction is
// committed when fn returns nil and aborted otherwise; the session is released
// on every exit path. Implementations must not retry fn.
type IdentityStore interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx IdentityTx) error) error
}

// IdentityTx is the transactional view used by sign-in reconciliation.
// Every read observes a consistent snapshot; every write becomes visible to
// other sessions only after commit.
type IdentityTx interface {
	// FindUserByEmail returns *domain.NotFoundError when no user has the email.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindUserByUsername returns *domain.NotFoundError when the username is
	// free in the transaction's snapshot.
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// CreateUser inserts user and fills in its ID and timestamps.
	CreateUser(ctx context.Context, user *domain.User) error

	// UpdateUserProfile writes only the fields set in changes.
	UpdateUserProfile(ctx context.Context, userID string, changes domain.ProfileChanges) error

	// FindAccount returns *domain.NotFoundError when the link does not exist.
	FindAccount(ctx context.Context, userID string, identity domain.ProviderIdentity) (*domain.Account, error)

	// CreateAccount inserts account and fills in its ID and creation time.
	CreateAccount(ctx context.Context, account *domain.Account) error
}

// UserRepository serves the non-transactional user lookups and the
// create-user endpoint.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	InsertUser(ctx context.Context, user *domain.User) error
}

// AccountRepository serves the non-transactional account lookups.
type AccountRepository interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)

	// GetAccountByProviderAccountID matches on providerAccountId only.
	// When several providers share the id, the oldest account is returned.
	GetAccountByProviderAccountID(ctx context.Context, providerAccountID string) (*domain.Account, error)
}

// Store is implemented by every storage engine.
type Store interface {
	IdentityStore
	UserRepository
	AccountRepository
	HealthChecker

	// Close releases connections held by the store.
	Close(ctx context.Context) error
}

// EventPublisher defines the contract for publishing domain events.
type EventPublisher interface {
	// Publish sends an event to the configured destination.
	Publish(ctx context.Context, event Event) error
}

// Event represents a domain event that can be published.
type Event interface {
	// EventType returns the type identifier for routing.
	EventType() string

	// Payload returns the event data for serialization.
	Payload() any
}
