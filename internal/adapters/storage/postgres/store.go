package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/telemetry"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// Compile-time interface check.
var _ ports.Store = (*Store)(nil)

const (
	resourceUser    = "User"
	resourceAccount = "Account"

	userColumns    = "id, name, username, email, image, created_at, updated_at"
	accountColumns = "id, user_id, name, image, provider, provider_account_id, created_at"
)

// querier is satisfied by both Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is a ports.Store backed by PostgreSQL.
type Store struct {
	pool Pool
	now  func() time.Time
}

// New creates a store over pool. The pool is closed by Close.
func New(pool Pool, opts ...Option) *Store {
	s := &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "postgres"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	return nil
}

// Close closes the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// WithinTransaction runs fn in a SERIALIZABLE transaction. A failed callback
// rolls back; a failed commit has already been rolled back by the server.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) (err error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "postgres.WithinTransaction", attribute.String("db.system", "postgresql"))
	defer func() {
		telemetry.ObserveStoreTransaction(s.Name(), telemetry.StoreOutcome(err, ports.ErrConflict), time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx, &transaction{q: tx, now: s.now}); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return mapError(err, resourceUser)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("committing transaction: %w", err), resourceUser)
	}

	return nil
}

// ListUsers returns every user, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		user, err := scanUser(row)
		if err != nil {
			return domain.User{}, err
		}

		return *user, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning users: %w", err)
	}

	return users, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.NewNotFoundError(resourceUser)
	}

	return queryUser(ctx, s.pool, "WHERE id = $1", id)
}

// GetUserByEmail returns the user with email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return queryUser(ctx, s.pool, "WHERE email = $1", email)
}

// GetUserByUsername returns the user with username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return queryUser(ctx, s.pool, "WHERE username = $1", username)
}

// InsertUser creates user outside a transaction. Duplicates surface as
// ports.ErrConflict.
func (s *Store) InsertUser(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, s.pool, user, s.now())
}

// ListAccounts returns every account, oldest first.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Account, error) {
		account, err := scanAccount(row)
		if err != nil {
			return domain.Account{}, err
		}

		return *account, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning accounts: %w", err)
	}

	return accounts, nil
}

// GetAccount returns the account with id.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.NewNotFoundError(resourceAccount)
	}

	return queryAccount(ctx, s.pool, "WHERE id = $1", id)
}

// GetAccountByProviderAccountID returns the oldest account with the provider
// account id, whatever its provider.
func (s *Store) GetAccountByProviderAccountID(ctx context.Context, providerAccountID string) (*domain.Account, error) {
	return queryAccount(ctx, s.pool, "WHERE provider_account_id = $1 ORDER BY created_at, id LIMIT 1", providerAccountID)
}

func queryUser(ctx context.Context, q querier, where string, args ...any) (*domain.User, error) {
	row := q.QueryRow(ctx, "SELECT "+userColumns+" FROM users "+where, args...)

	user, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, resourceUser)
	}

	return user, nil
}

func queryAccount(ctx context.Context, q querier, where string, args ...any) (*domain.Account, error) {
	row := q.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts "+where, args...)

	account, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err, resourceAccount)
	}

	return account, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}

	return &u, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Image, &a.Provider, &a.ProviderAccountID, &a.CreatedAt); err != nil {
		return nil, err
	}

	return &a, nil
}

func insertUser(ctx context.Context, q querier, user *domain.User, now time.Time) error {
	id := uuid.NewString()

	_, err := q.Exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		id, user.Name, user.Username, user.Email, user.Image, now, now,
	)
	if err != nil {
		return mapError(fmt.Errorf("inserting user: %w", err), resourceUser)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// profileUpdate builds the UPDATE statement for a partial profile update.
// The user id is always the last argument.
func profileUpdate(userID string, changes domain.ProfileChanges, now time.Time) (string, []any) {
	sets := []string{"updated_at = $1"}
	args := []any{now}

	if changes.Name != nil {
		args = append(args, *changes.Name)
		sets = append(sets, "name = $"+strconv.Itoa(len(args)))
	}

	if changes.Image != nil {
		args = append(args, *changes.Image)
		sets = append(sets, "image = $"+strconv.Itoa(len(args)))
	}

	args = append(args, userID)

	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args)), args
}

// transaction implements ports.IdentityTx over a pgx.Tx.
type transaction struct {
	q   querier
	now func() time.Time
}

func (tx *transaction) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return queryUser(ctx, tx.q, "WHERE email = $1", email)
}

func (tx *transaction) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return queryUser(ctx, tx.q, "WHERE username = $1", username)
}

func (tx *transaction) CreateUser(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, tx.q, user, tx.now())
}

func (tx *transaction) UpdateUserProfile(ctx context.Context, userID string, changes domain.ProfileChanges) error {
	if uuid.Validate(userID) != nil {
		return domain.NewNotFoundError(resourceUser)
	}

	sql, args := profileUpdate(userID, changes, tx.now())

	tag, err := tx.q.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(fmt.Errorf("updating user: %w", err), resourceUser)
	}

	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError(resourceUser)
	}

	return nil
}

func (tx *transaction) FindAccount(ctx context.Context, userID string, identity domain.ProviderIdentity) (*domain.Account, error) {
	if uuid.Validate(userID) != nil {
		return nil, domain.NewNotFoundError(resourceAccount)
	}

	return queryAccount(ctx, tx.q,
		"WHERE user_id = $1 AND provider = $2 AND provider_account_id = $3",
		userID, identity.Provider, identity.ProviderAccountID,
	)
}

func (tx *transaction) CreateAccount(ctx context.Context, account *domain.Account) error {
	id := uuid.NewString()
	now := tx.now()

	_, err := tx.q.Exec(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		id, account.UserID, account.Name, account.Image, account.Provider, account.ProviderAccountID, now,
	)
	if err != nil {
		return mapError(fmt.Errorf("inserting account: %w", err), resourceAccount)
	}

	account.ID = id
	account.CreatedAt = now

	return nil
}
