// Package storetest holds the behaviour every ports.Store must share. Engine
// packages run it against a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) ports.Store

// Run executes the shared store tests.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("commit makes writes visible", func(t *testing.T) { testCommit(t, newStore(t)) })
	t.Run("callback error aborts", func(t *testing.T) { testAbort(t, newStore(t)) })
	t.Run("partial profile update", func(t *testing.T) { testUpdateProfile(t, newStore(t)) })
	t.Run("find account matches full identity", func(t *testing.T) { testFindAccount(t, newStore(t)) })
	t.Run("find user by username", func(t *testing.T) { testFindUserByUsername(t, newStore(t)) })
	t.Run("duplicate insert conflicts", func(t *testing.T) { testInsertConflict(t, newStore(t)) })
	t.Run("oldest account wins provider lookup", func(t *testing.T) { testProviderLookup(t, newStore(t)) })
	t.Run("concurrent creates commit once", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("missing records", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func newUser(email, username string) *domain.User {
	return &domain.User{Name: "Jane Doe", Username: username, Email: email, Image: "https://example.com/a.png"}
}

func createUserAndAccount(t *testing.T, store ports.Store, email, username, provider, providerAccountID string) (*domain.User, *domain.Account) {
	t.Helper()

	var (
		user    *domain.User
		account *domain.Account
	)

	err := store.WithinTransaction(context.Background(), func(ctx context.Context, tx ports.IdentityTx) error {
		user = newUser(email, username)
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		account = &domain.Account{
			UserID:            user.ID,
			Name:              user.Name,
			Provider:          provider,
			ProviderAccountID: providerAccountID,
		}

		return tx.CreateAccount(ctx, account)
	})
	require.NoError(t, err)

	return user, account
}

func testCommit(t *testing.T, store ports.Store) {
	ctx := context.Background()
	user, account := createUserAndAccount(t, store, "jane@example.com", "jane", "github", "x123")

	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NotEmpty(t, account.ID)

	got, err := store.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "jane", got.Username)

	byID, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Email, byID.Email)

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, user.ID, accounts[0].UserID)
}

func testAbort(t *testing.T, store ports.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		if err := tx.CreateUser(ctx, newUser("jane@example.com", "jane")); err != nil {
			return err
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func testUpdateProfile(t *testing.T, store ports.Store) {
	ctx := context.Background()
	user, _ := createUserAndAccount(t, store, "jane@example.com", "jane", "github", "x123")

	name := "Jane Q. Doe"

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		return tx.UpdateUserProfile(ctx, user.ID, domain.ProfileChanges{Name: &name})
	})
	require.NoError(t, err)

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Q. Doe", got.Name)
	assert.Equal(t, user.Image, got.Image)
	assert.Equal(t, user.Username, got.Username)
	assert.False(t, got.UpdatedAt.Before(user.UpdatedAt))
}

func testFindAccount(t *testing.T, store ports.Store) {
	ctx := context.Background()
	user, account := createUserAndAccount(t, store, "jane@example.com", "jane", "github", "x123")

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		found, err := tx.FindAccount(ctx, user.ID, domain.ProviderIdentity{Provider: "github", ProviderAccountID: "x123"})
		if err != nil {
			return err
		}

		assert.Equal(t, account.ID, found.ID)

		_, err = tx.FindAccount(ctx, user.ID, domain.ProviderIdentity{Provider: "gitlab", ProviderAccountID: "x123"})
		assert.True(t, domain.IsNotFound(err), "different provider must not match: %v", err)

		return nil
	})
	require.NoError(t, err)
}

func testFindUserByUsername(t *testing.T, store ports.Store) {
	user, _ := createUserAndAccount(t, store, "jane@example.com", "jane", "github", "x123")

	err := store.WithinTransaction(context.Background(), func(ctx context.Context, tx ports.IdentityTx) error {
		held, err := tx.FindUserByUsername(ctx, "jane")
		require.NoError(t, err)
		assert.Equal(t, user.ID, held.ID)

		_, err = tx.FindUserByUsername(ctx, "john")
		assert.True(t, domain.IsNotFound(err))

		return nil
	})
	require.NoError(t, err)
}

func testInsertConflict(t *testing.T, store ports.Store) {
	ctx := context.Background()

	require.NoError(t, store.InsertUser(ctx, newUser("jane@example.com", "jane")))

	err := store.InsertUser(ctx, newUser("jane@example.com", "other"))
	require.ErrorIs(t, err, ports.ErrConflict)

	err = store.InsertUser(ctx, newUser("other@example.com", "jane"))
	require.ErrorIs(t, err, ports.ErrConflict)

	got, err := store.GetUserByUsername(ctx, "jane")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.Email)
}

func testProviderLookup(t *testing.T, store ports.Store) {
	ctx := context.Background()
	_, first := createUserAndAccount(t, store, "jane@example.com", "jane", "github", "shared")

	time.Sleep(5 * time.Millisecond)
	createUserAndAccount(t, store, "john@example.com", "john", "gitlab", "shared")

	got, err := store.GetAccountByProviderAccountID(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "github", got.Provider)
}

func testConcurrentCreate(t *testing.T, store ports.Store) {
	const callers = 8

	var (
		created   atomic.Int32
		conflicts atomic.Int32
	)

	g, ctx := errgroup.WithContext(context.Background())
	start := make(chan struct{})

	for range callers {
		g.Go(func() error {
			<-start

			var creating bool

			err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
				_, err := tx.FindUserByEmail(ctx, "race@example.com")
				if !domain.IsNotFound(err) {
					return err
				}

				creating = true

				return tx.CreateUser(ctx, newUser("race@example.com", "race"))
			})

			switch {
			case err == nil:
				if creating {
					created.Add(1)
				}
			case errors.Is(err, ports.ErrConflict):
				conflicts.Add(1)
			default:
				return err
			}

			return nil
		})
	}

	close(start)
	require.NoError(t, g.Wait())

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, int32(1), created.Load())
	assert.LessOrEqual(t, conflicts.Load(), int32(callers-1))
}

func testNotFound(t *testing.T, store ports.Store) {
	ctx := context.Background()

	_, err := store.GetUserByEmail(ctx, "ghost@example.com")
	assert.EqualError(t, err, "User not found")

	_, err = store.GetAccountByProviderAccountID(ctx, "ghost")
	assert.EqualError(t, err, "Account not found")

	require.NoError(t, store.Check(ctx))
	assert.NotEmpty(t, store.Name())
}
