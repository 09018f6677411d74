//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients/acl"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
)

// testConcurrentConfig returns a client config for concurrent testing.
func testConcurrentConfig(baseURL string) *clients.Config {
	return &clients.Config{
		ServiceName: "identity-api",
		BaseURL:     baseURL,
		Timeout:     10 * time.Second,
		Circuit: config.CircuitBreakerConfig{
			MaxFailures:   10, // Higher threshold for concurrent tests
			Timeout:       100 * time.Millisecond,
			HalfOpenLimit: 3,
		},
	}
}

func newConcurrentClient(t *testing.T, cfg *clients.Config) *acl.IdentityClient {
	t.Helper()

	client, err := clients.New(cfg)
	require.NoError(t, err)

	return acl.NewIdentityClient(acl.IdentityClientConfig{Client: client})
}

func startInProcess(t *testing.T) *acl.IdentityClient {
	t.Helper()

	server := httptest.NewServer(newInProcessRouter())
	t.Cleanup(server.Close)

	return newConcurrentClient(t, testConcurrentConfig(server.URL))
}

func raceSignIn(provider, providerAccountID string) domain.OAuthSignIn {
	return domain.OAuthSignIn{
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		User: domain.Profile{
			Name:     "Race Condition",
			Username: "race",
			Email:    "race@example.com",
		},
	}
}

// maxSignInAttempts bounds signInUntilCommitted.
const maxSignInAttempts = 50

// signInUntilCommitted repeats a sign-in while it loses commit races, the
// way a caller is expected to react to a 409.
func signInUntilCommitted(ctx context.Context, client *acl.IdentityClient, in domain.OAuthSignIn) (int32, error) {
	var conflicts int32

	for range maxSignInAttempts {
		err := client.SignInWithOAuth(ctx, in)

		var requestErr *domain.RequestError
		if errors.As(err, &requestErr) && requestErr.Status == http.StatusConflict {
			conflicts++
			continue
		}

		return conflicts, err
	}

	return conflicts, fmt.Errorf("sign-in still conflicting after %d attempts", maxSignInAttempts)
}

// TestConcurrent_SameIdentity verifies that simultaneous sign-ins with one
// identity create exactly one user and one account.
func TestConcurrent_SameIdentity(t *testing.T) {
	client := startInProcess(t)

	const callers = 20

	var conflicts atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	start := make(chan struct{})

	for range callers {
		g.Go(func() error {
			<-start

			n, err := signInUntilCommitted(ctx, client, raceSignIn("github", "gh-race"))
			conflicts.Add(n)

			return err
		})
	}

	close(start)
	require.NoError(t, g.Wait())

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "race", users[0].Username)

	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, users[0].ID, accounts[0].UserID)

	t.Logf("commit conflicts retried: %d", conflicts.Load())
}

// TestConcurrent_ManyProvidersOneEmail verifies that several providers
// signing in for the same email all link to a single user.
func TestConcurrent_ManyProvidersOneEmail(t *testing.T) {
	client := startInProcess(t)

	const providers = 8

	g, ctx := errgroup.WithContext(context.Background())
	start := make(chan struct{})

	for i := range providers {
		g.Go(func() error {
			<-start

			_, err := signInUntilCommitted(ctx, client, raceSignIn(fmt.Sprintf("provider-%d", i), fmt.Sprintf("id-%d", i)))

			return err
		})
	}

	close(start)
	require.NoError(t, g.Wait())

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)

	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, providers)

	for _, account := range accounts {
		assert.Equal(t, users[0].ID, account.UserID)
	}
}

// TestConcurrent_DistinctIdentities verifies that unrelated sign-ins do not
// interfere with each other.
func TestConcurrent_DistinctIdentities(t *testing.T) {
	client := startInProcess(t)

	const callers = 25

	g, ctx := errgroup.WithContext(context.Background())

	for i := range callers {
		g.Go(func() error {
			_, err := signInUntilCommitted(ctx, client, domain.OAuthSignIn{
				Provider:          "github",
				ProviderAccountID: fmt.Sprintf("gh-%d", i),
				User: domain.Profile{
					Name:     fmt.Sprintf("User %d", i),
					Username: fmt.Sprintf("user-%d", i),
					Email:    fmt.Sprintf("user%d@example.com", i),
				},
			})

			return err
		})
	}

	require.NoError(t, g.Wait())

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, callers)
}

// TestConcurrent_CircuitBreakerUnderLoad verifies that a failing identity
// API opens the breaker and that it recovers once the API does.
func TestConcurrent_CircuitBreakerUnderLoad(t *testing.T) {
	var healthy atomic.Bool

	router := newInProcessRouter()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		router.ServeHTTP(w, r)
	}))
	defer server.Close()

	cfg := testConcurrentConfig(server.URL)
	cfg.Circuit.MaxFailures = 3
	cfg.Circuit.Timeout = 500 * time.Millisecond
	client := newConcurrentClient(t, cfg)

	var circuitOpen int

	for range 10 {
		_, err := client.ListUsers(context.Background())
		require.Error(t, err)

		if errors.Is(err, clients.ErrCircuitOpen) {
			circuitOpen++
		}
	}

	assert.Equal(t, 7, circuitOpen, "calls after the third failure should be rejected by the breaker")

	healthy.Store(true)
	time.Sleep(550 * time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := client.ListUsers(context.Background())
		return err == nil
	}, time.Second, 20*time.Millisecond, "breaker should close once the API recovers")
}
