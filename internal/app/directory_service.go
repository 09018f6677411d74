package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// DirectoryService serves user and account lookups and the single
// non-reconciliation writer, CreateUser.
type DirectoryService struct {
	users    ports.UserRepository
	accounts ports.AccountRepository
	logger   *slog.Logger
}

// DirectoryServiceConfig contains the dependencies of DirectoryService.
type DirectoryServiceConfig struct {
	Users    ports.UserRepository
	Accounts ports.AccountRepository
	Logger   *slog.Logger
}

// NewDirectoryService creates a directory service. It panics when a
// repository is missing.
func NewDirectoryService(cfg DirectoryServiceConfig) *DirectoryService {
	if cfg.Users == nil || cfg.Accounts == nil {
		panic("app: DirectoryService requires user and account repositories")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DirectoryService{
		users:    cfg.Users,
		accounts: cfg.Accounts,
		logger:   logger.With(slog.String("component", "app.DirectoryService")),
	}
}

// ListUsers returns every user, oldest first.
func (s *DirectoryService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

// GetUser returns the user with the given ID.
func (s *DirectoryService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", "is required")
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns the user registered with email.
func (s *DirectoryService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	lookup := domain.EmailLookup{Email: email}
	if err := lookup.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, lookup.Email)
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}

	return user, nil
}

// CreateUser registers a user outside the sign-in path. The username is
// stored in slug form, as sign-in does.
func (s *DirectoryService) CreateUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	username := usernameSlug(in.Username)
	if username == "" {
		return nil, domain.NewValidationError("username", "must contain letters or digits")
	}

	if err := s.ensureAvailable(ctx, in.Email, username); err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:     in.Name,
		Username: username,
		Email:    in.Email,
		Image:    in.Image,
	}

	if err := s.users.InsertUser(ctx, user); err != nil {
		return nil, transactionFailure(err)
	}

	s.logger.InfoContext(ctx, "user created", slog.String("user_id", user.ID))

	return user, nil
}

func (s *DirectoryService) ensureAvailable(ctx context.Context, email, username string) error {
	_, err := s.users.GetUserByEmail(ctx, email)

	switch {
	case err == nil:
		return domain.NewRequestError(http.StatusConflict, "Email already exists")
	case !domain.IsNotFound(err):
		return fmt.Errorf("checking email: %w", err)
	}

	_, err = s.users.GetUserByUsername(ctx, username)

	switch {
	case err == nil:
		return usernameTaken()
	case !domain.IsNotFound(err):
		return fmt.Errorf("checking username: %w", err)
	}

	return nil
}

// ListAccounts returns every account, oldest first.
func (s *DirectoryService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	return accounts, nil
}

// GetAccount returns the account with the given ID.
func (s *DirectoryService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", "is required")
	}

	account, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}

	return account, nil
}

// GetAccountByProvider returns the account linked to providerAccountID.
func (s *DirectoryService) GetAccountByProvider(ctx context.Context, providerAccountID string) (*domain.Account, error) {
	lookup := domain.ProviderAccountLookup{ProviderAccountID: providerAccountID}
	if err := lookup.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccountByProviderAccountID(ctx, lookup.ProviderAccountID)
	if err != nil {
		return nil, fmt.Errorf("getting account by provider: %w", err)
	}

	return account, nil
}
