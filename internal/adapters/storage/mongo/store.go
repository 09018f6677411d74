package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
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
)

// oldestFirst orders records by creation, with the id as tie breaker.
var oldestFirst = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is a ports.Store backed by a MongoDB database.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	accounts *mongo.Collection
	now      func() time.Time
}

// New creates a store over database. The client stays owned by the store and
// is disconnected by Close.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	db := client.Database(database)

	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		accounts: db.Collection(accountsCollection),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EnsureIndexes creates the unique indexes reconciliation depends on. It is
// idempotent and must complete before the server accepts traffic.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_username_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating user indexes: %w", err)
	}

	_, err = s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "provider", Value: 1},
				{Key: "providerAccountId", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("accounts_identity_unique"),
		},
		{
			Keys:    bson.D{{Key: "providerAccountId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("accounts_provider_account_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating account indexes: %w", err)
	}

	return nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "mongo"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}

	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// WithinTransaction runs fn in a session transaction. The session is ended on
// every path; a failed callback or commit aborts the transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) (err error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "mongo.WithinTransaction", attribute.String("db.system", "mongodb"))
	defer func() {
		telemetry.ObserveStoreTransaction(s.Name(), telemetry.StoreOutcome(err, ports.ErrConflict), time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	if err := session.StartTransaction(txOpts); err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	sessionCtx := mongo.NewSessionContext(ctx, session)

	if err := fn(sessionCtx, &transaction{store: s}); err != nil {
		_ = session.AbortTransaction(context.WithoutCancel(ctx))
		return mapError(err, resourceUser)
	}

	if err := session.CommitTransaction(sessionCtx); err != nil {
		_ = session.AbortTransaction(context.WithoutCancel(ctx))
		return mapError(fmt.Errorf("committing transaction: %w", err), resourceUser)
	}

	return nil
}

// ListUsers returns every user, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	cursor, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}

	users := make([]domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].toDomain())
	}

	return users, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	oid, err := objectID(id, resourceUser)
	if err != nil {
		return nil, err
	}

	return s.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

// GetUserByEmail returns the user with email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

// GetUserByUsername returns the user with username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError(err, resourceUser)
	}

	return doc.toDomain(), nil
}

// InsertUser creates user outside a transaction. Duplicates surface as
// ports.ErrConflict.
func (s *Store) InsertUser(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, s.users, user, s.now())
}

func insertUser(ctx context.Context, users *mongo.Collection, user *domain.User, now time.Time) error {
	doc := newUserDocument(user, now)

	if _, err := users.InsertOne(ctx, doc); err != nil {
		return mapError(fmt.Errorf("inserting user: %w", err), resourceUser)
	}

	user.ID = doc.ID.Hex()
	user.CreatedAt = doc.CreatedAt
	user.UpdatedAt = doc.UpdatedAt

	return nil
}

// ListAccounts returns every account, oldest first.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	cursor, err := s.accounts.Find(ctx, bson.D{}, options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	var docs []accountDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding accounts: %w", err)
	}

	accounts := make([]domain.Account, 0, len(docs))
	for i := range docs {
		accounts = append(accounts, *docs[i].toDomain())
	}

	return accounts, nil
}

// GetAccount returns the account with id.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	oid, err := objectID(id, resourceAccount)
	if err != nil {
		return nil, err
	}

	return findAccount(ctx, s.accounts, bson.D{{Key: "_id", Value: oid}})
}

// GetAccountByProviderAccountID returns the oldest account with the provider
// account id, whatever its provider.
func (s *Store) GetAccountByProviderAccountID(ctx context.Context, providerAccountID string) (*domain.Account, error) {
	return findAccount(ctx, s.accounts,
		bson.D{{Key: "providerAccountId", Value: providerAccountID}},
		options.FindOne().SetSort(oldestFirst),
	)
}

func findAccount(
	ctx context.Context,
	accounts *mongo.Collection,
	filter bson.D,
	opts ...options.Lister[options.FindOneOptions],
) (*domain.Account, error) {
	var doc accountDocument
	if err := accounts.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, mapError(err, resourceAccount)
	}

	return doc.toDomain(), nil
}

// transaction implements ports.IdentityTx. Every call must receive the
// session context passed to the callback.
type transaction struct {
	store *Store
}

func (tx *transaction) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return tx.store.GetUserByEmail(ctx, email)
}

func (tx *transaction) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return tx.store.GetUserByUsername(ctx, username)
}

func (tx *transaction) CreateUser(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, tx.store.users, user, tx.store.now())
}

func (tx *transaction) UpdateUserProfile(ctx context.Context, userID string, changes domain.ProfileChanges) error {
	oid, err := objectID(userID, resourceUser)
	if err != nil {
		return err
	}

	res, err := tx.store.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		profileUpdate(changes, tx.store.now()),
	)
	if err != nil {
		return mapError(fmt.Errorf("updating user: %w", err), resourceUser)
	}

	if res.MatchedCount == 0 {
		return domain.NewNotFoundError(resourceUser)
	}

	return nil
}

func (tx *transaction) FindAccount(ctx context.Context, userID string, identity domain.ProviderIdentity) (*domain.Account, error) {
	oid, err := objectID(userID, resourceAccount)
	if err != nil {
		return nil, err
	}

	return findAccount(ctx, tx.store.accounts, bson.D{
		{Key: "userId", Value: oid},
		{Key: "provider", Value: identity.Provider},
		{Key: "providerAccountId", Value: identity.ProviderAccountID},
	})
}

func (tx *transaction) CreateAccount(ctx context.Context, account *domain.Account) error {
	userID, err := objectID(account.UserID, resourceUser)
	if err != nil {
		return err
	}

	doc := accountDocument{
		ID:                bson.NewObjectID(),
		UserID:            userID,
		Name:              account.Name,
		Image:             account.Image,
		Provider:          account.Provider,
		ProviderAccountID: account.ProviderAccountID,
		CreatedAt:         tx.store.now(),
	}

	if _, err := tx.store.accounts.InsertOne(ctx, doc); err != nil {
		return mapError(fmt.Errorf("inserting account: %w", err), resourceAccount)
	}

	account.ID = doc.ID.Hex()
	account.CreatedAt = doc.CreatedAt

	return nil
}
