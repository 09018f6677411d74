// Package memory provides an in-process identity store with snapshot
// isolation. Each transaction reads from a private copy of the committed
// state; unique indexes and write conflicts are validated at commit, so two
// concurrent sign-ins for the same email behave as they would against a
// database with unique indexes: exactly one commits.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/telemetry"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// Compile-time interface check.
var _ ports.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store keeps users and accounts in maps guarded by a single lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	accounts map[string]domain.Account
	versions map[string]uint64
	now      func() time.Time
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		users:    make(map[string]domain.User),
		accounts: make(map[string]domain.Account),
		versions: make(map[string]uint64),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	return ctx.Err()
}

// Close implements ports.Store.
func (s *Store) Close(context.Context) error {
	return nil
}

// WithinTransaction implements ports.IdentityStore.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) error {
	start := time.Now()
	err := s.runTransaction(ctx, fn)
	telemetry.ObserveStoreTransaction(s.Name(), telemetry.StoreOutcome(err, ports.ErrConflict), time.Since(start))

	return err
}

func (s *Store) runTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.begin()

	if err := fn(ctx, tx); err != nil {
		// Abort: the private snapshot is simply dropped.
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.commit(tx)
}

func (s *Store) begin() *transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := &transaction{
		store:    s,
		users:    make(map[string]domain.User, len(s.users)),
		accounts: make(map[string]domain.Account, len(s.accounts)),
		readVer:  make(map[string]uint64, len(s.versions)),
		updated:  make(map[string]struct{}),
	}

	for id, u := range s.users {
		tx.users[id] = u
		tx.readVer[id] = s.versions[id]
	}

	for id, a := range s.accounts {
		tx.accounts[id] = a
	}

	return tx
}

func (s *Store) commit(tx *transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range tx.updated {
		if s.versions[id] != tx.readVer[id] {
			return fmt.Errorf("%w: user %s changed since the transaction started", ports.ErrConflict, id)
		}
	}

	for _, id := range tx.createdUsers {
		if err := s.checkUserUnique(tx.users[id]); err != nil {
			return err
		}
	}

	for _, id := range tx.createdAccounts {
		if err := s.checkAccountUnique(tx.accounts[id]); err != nil {
			return err
		}
	}

	for _, id := range tx.createdUsers {
		s.users[id] = tx.users[id]
		s.versions[id] = 1
	}

	for id := range tx.updated {
		s.users[id] = tx.users[id]
		s.versions[id]++
	}

	for _, id := range tx.createdAccounts {
		s.accounts[id] = tx.accounts[id]
	}

	return nil
}

// checkUserUnique must be called with mu held.
func (s *Store) checkUserUnique(user domain.User) error {
	return uniqueUser(s.users, user)
}

// checkAccountUnique must be called with mu held.
func (s *Store) checkAccountUnique(account domain.Account) error {
	return uniqueAccount(s.accounts, account)
}

func uniqueUser(users map[string]domain.User, user domain.User) error {
	for _, existing := range users {
		if existing.ID == user.ID {
			continue
		}

		if existing.Email == user.Email {
			return fmt.Errorf("%w: users.email %q", ports.ErrConflict, user.Email)
		}

		if existing.Username == user.Username {
			return fmt.Errorf("%w: users.username %q", ports.ErrConflict, user.Username)
		}
	}

	return nil
}

func uniqueAccount(accounts map[string]domain.Account, account domain.Account) error {
	for _, existing := range accounts {
		if existing.ID == account.ID {
			continue
		}

		if existing.UserID == account.UserID &&
			existing.Provider == account.Provider &&
			existing.ProviderAccountID == account.ProviderAccountID {
			return fmt.Errorf("%w: accounts (%s, %s)", ports.ErrConflict, account.Provider, account.ProviderAccountID)
		}
	}

	return nil
}

// ListUsers implements ports.UserRepository. Users are ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}

	slices.SortFunc(users, func(a, b domain.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return users, nil
}

// GetUser implements ports.UserRepository.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.NewNotFoundError("User")
	}

	return &u, nil
}

// GetUserByEmail implements ports.UserRepository.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return findUserByEmail(s.users, email)
}

// GetUserByUsername implements ports.UserRepository.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return findUserByUsername(s.users, username)
}

// InsertUser implements ports.UserRepository.
func (s *Store) InsertUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stampUser(user, s.now())

	if err := uniqueUser(s.users, *user); err != nil {
		return err
	}

	s.users[user.ID] = *user
	s.versions[user.ID] = 1

	return nil
}

// ListAccounts implements ports.AccountRepository.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedAccounts(s.accounts), nil
}

// GetAccount implements ports.AccountRepository.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.NewNotFoundError("Account")
	}

	return &a, nil
}

// GetAccountByProviderAccountID implements ports.AccountRepository.
func (s *Store) GetAccountByProviderAccountID(ctx context.Context, providerAccountID string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range sortedAccounts(s.accounts) {
		if a.ProviderAccountID == providerAccountID {
			return &a, nil
		}
	}

	return nil, domain.NewNotFoundError("Account")
}

func findUserByEmail(users map[string]domain.User, email string) (*domain.User, error) {
	for _, u := range users {
		if u.Email == email {
			return &u, nil
		}
	}

	return nil, domain.NewNotFoundError("User")
}

func findUserByUsername(users map[string]domain.User, username string) (*domain.User, error) {
	for _, u := range users {
		if u.Username == username {
			return &u, nil
		}
	}

	return nil, domain.NewNotFoundError("User")
}

func sortedAccounts(accounts map[string]domain.Account) []domain.Account {
	out := make([]domain.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a)
	}

	slices.SortFunc(out, func(a, b domain.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return out
}

func stampUser(user *domain.User, now time.Time) {
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
}

// transaction is the private snapshot of one WithinTransaction call.
type transaction struct {
	store           *Store
	users           map[string]domain.User
	accounts        map[string]domain.Account
	readVer         map[string]uint64
	updated         map[string]struct{}
	createdUsers    []string
	createdAccounts []string
}

func (tx *transaction) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return findUserByEmail(tx.users, email)
}

func (tx *transaction) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return findUserByUsername(tx.users, username)
}

func (tx *transaction) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stampUser(user, tx.store.now())

	if err := uniqueUser(tx.users, *user); err != nil {
		return err
	}

	tx.users[user.ID] = *user
	tx.createdUsers = append(tx.createdUsers, user.ID)

	return nil
}

func (tx *transaction) UpdateUserProfile(ctx context.Context, userID string, changes domain.ProfileChanges) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u, ok := tx.users[userID]
	if !ok {
		return domain.NewNotFoundError("User")
	}

	changes.Apply(&u)
	u.UpdatedAt = tx.store.now()
	tx.users[userID] = u

	if !slices.Contains(tx.createdUsers, userID) {
		tx.updated[userID] = struct{}{}
	}

	return nil
}

func (tx *transaction) FindAccount(ctx context.Context, userID string, identity domain.ProviderIdentity) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, a := range tx.accounts {
		if a.UserID == userID &&
			a.Provider == identity.Provider &&
			a.ProviderAccountID == identity.ProviderAccountID {
			return &a, nil
		}
	}

	return nil, domain.NewNotFoundError("Account")
}

func (tx *transaction) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	account.ID = uuid.NewString()
	account.CreatedAt = tx.store.now()

	if err := uniqueAccount(tx.accounts, *account); err != nil {
		return err
	}

	tx.accounts[account.ID] = *account
	tx.createdAccounts = append(tx.createdAccounts, account.ID)

	return nil
}
