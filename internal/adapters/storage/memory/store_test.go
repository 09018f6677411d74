package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/storetest"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

func TestStore_Shared(t *testing.T) {
	storetest.Run(t, func(*testing.T) ports.Store { return New() })
}

func newUser(email, username string) *domain.User {
	return &domain.User{Name: "Jane", Username: username, Email: email}
}

func TestWithinTransaction_CommitMakesWritesVisible(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		user := newUser("jane@example.com", "jane")
		require.NoError(t, tx.CreateUser(ctx, user))

		found, err := tx.FindUserByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)

		return tx.CreateAccount(ctx, &domain.Account{
			UserID:            user.ID,
			Provider:          "github",
			ProviderAccountID: "gh-1",
		})
	})
	require.NoError(t, err)

	user, err := store.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)

	account, err := store.GetAccountByProviderAccountID(ctx, "gh-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, account.UserID)
}

func TestWithinTransaction_ErrorDiscardsWrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		require.NoError(t, tx.CreateUser(ctx, newUser("jane@example.com", "jane")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetUserByEmail(ctx, "jane@example.com")
	assert.True(t, domain.IsNotFound(err))
}

func TestWithinTransaction_UncommittedWritesAreInvisible(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		require.NoError(t, tx.CreateUser(ctx, newUser("jane@example.com", "jane")))

		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		return nil
	})
	require.NoError(t, err)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestWithinTransaction_ConcurrentCreateConflictsAtCommit(t *testing.T) {
	store := New()
	ctx := context.Background()

	// The outer transaction snapshots before the inner one commits.
	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		inner := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
			return tx.CreateUser(ctx, newUser("jane@example.com", "jane"))
		})
		require.NoError(t, inner)

		_, err := tx.FindUserByEmail(ctx, "jane@example.com")
		assert.True(t, domain.IsNotFound(err))

		return tx.CreateUser(ctx, newUser("jane@example.com", "jane-2"))
	})

	require.ErrorIs(t, err, ports.ErrConflict)
	assert.Contains(t, err.Error(), "users.email")

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestWithinTransaction_ConcurrentUpdateConflictsAtCommit(t *testing.T) {
	store := New()
	ctx := context.Background()

	user := newUser("jane@example.com", "jane")
	require.NoError(t, store.InsertUser(ctx, user))

	rename := func(name string) domain.ProfileChanges {
		return domain.ProfileChanges{Name: &name}
	}

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		inner := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
			return tx.UpdateUserProfile(ctx, user.ID, rename("Inner"))
		})
		require.NoError(t, inner)

		return tx.UpdateUserProfile(ctx, user.ID, rename("Outer"))
	})
	require.ErrorIs(t, err, ports.ErrConflict)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Inner", stored.Name)
}

func TestTransaction_DuplicateAccountInsideTransaction(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		account := domain.Account{UserID: "u1", Provider: "github", ProviderAccountID: "gh-1"}
		first := account
		require.NoError(t, tx.CreateAccount(ctx, &first))

		second := account
		return tx.CreateAccount(ctx, &second)
	})

	require.ErrorIs(t, err, ports.ErrConflict)
}

func TestTransaction_UpdateUserProfile(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	clock := created

	store := New(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	user := newUser("jane@example.com", "jane")
	user.Image = "https://example.com/a.png"
	require.NoError(t, store.InsertUser(ctx, user))

	clock = updated
	name := "Jane Doe"

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		return tx.UpdateUserProfile(ctx, user.ID, domain.ProfileChanges{Name: &name})
	})
	require.NoError(t, err)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", stored.Name)
	assert.Equal(t, "https://example.com/a.png", stored.Image)
	assert.Equal(t, created, stored.CreatedAt)
	assert.Equal(t, updated, stored.UpdatedAt)
}

func TestTransaction_UpdateMissingUser(t *testing.T) {
	store := New()

	err := store.WithinTransaction(context.Background(), func(ctx context.Context, tx ports.IdentityTx) error {
		return tx.UpdateUserProfile(ctx, "missing", domain.ProfileChanges{})
	})

	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "User", notFound.Resource)
}

func TestTransaction_FindAccountMatchesFullKey(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		require.NoError(t, tx.CreateAccount(ctx, &domain.Account{
			UserID: "u1", Provider: "github", ProviderAccountID: "1",
		}))

		_, err := tx.FindAccount(ctx, "u1", domain.ProviderIdentity{Provider: "github", ProviderAccountID: "1"})
		require.NoError(t, err)

		_, err = tx.FindAccount(ctx, "u1", domain.ProviderIdentity{Provider: "google", ProviderAccountID: "1"})
		assert.True(t, domain.IsNotFound(err))

		_, err = tx.FindAccount(ctx, "u2", domain.ProviderIdentity{Provider: "github", ProviderAccountID: "1"})
		assert.True(t, domain.IsNotFound(err))

		return nil
	})
	require.NoError(t, err)
}

func TestWithinTransaction_CancelledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTransaction(ctx, func(context.Context, ports.IdentityTx) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestInsertUser_Duplicates(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.InsertUser(ctx, newUser("jane@example.com", "jane")))

	tests := []struct {
		name    string
		user    *domain.User
		wantMsg string
	}{
		{name: "same email", user: newUser("jane@example.com", "other"), wantMsg: "users.email"},
		{name: "same username", user: newUser("other@example.com", "jane"), wantMsg: "users.username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.InsertUser(ctx, tt.user)
			require.ErrorIs(t, err, ports.ErrConflict)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLookups_NotFound(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.GetUser(ctx, "missing")
	assert.EqualError(t, err, "User not found")

	_, err = store.GetUserByEmail(ctx, "missing@example.com")
	assert.EqualError(t, err, "User not found")

	_, err = store.GetAccount(ctx, "missing")
	assert.EqualError(t, err, "Account not found")

	_, err = store.GetAccountByProviderAccountID(ctx, "missing")
	assert.EqualError(t, err, "Account not found")
}

func TestGetAccountByProviderAccountID_OldestWins(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	store := New(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	for i, provider := range []string{"github", "google"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		err := store.WithinTransaction(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
			return tx.CreateAccount(ctx, &domain.Account{UserID: "u1", Provider: provider, ProviderAccountID: "42"})
		})
		require.NoError(t, err)
	}

	account, err := store.GetAccountByProviderAccountID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "github", account.Provider)

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "google", accounts[1].Provider)
}

func TestHealthCheck(t *testing.T) {
	store := New()

	assert.Equal(t, "memory", store.Name())
	require.NoError(t, store.Check(context.Background()))
	require.NoError(t, store.Close(context.Background()))
}
