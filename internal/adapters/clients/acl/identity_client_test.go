package acl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients"
	httpadapter "github.com/jsamuelsen/devflow-identity/internal/adapters/http"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/handlers"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/memory"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIdentityClient(t *testing.T, baseURL string, timeout time.Duration) *IdentityClient {
	t.Helper()

	client, err := clients.New(&clients.Config{
		BaseURL:     baseURL,
		ServiceName: "identity-api",
		Timeout:     timeout,
		Circuit:     config.CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Second, HalfOpenLimit: 1},
		Logger:      discardLogger(),
	})
	require.NoError(t, err)

	return NewIdentityClient(IdentityClientConfig{Client: client, Logger: discardLogger()})
}

// startService runs the real router over an in-memory store.
func startService(t *testing.T) *IdentityClient {
	t.Helper()

	store := memory.New()
	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(store))

	identity := app.NewIdentityService(app.IdentityServiceConfig{Store: store, Logger: discardLogger()})
	directory := app.NewDirectoryService(app.DirectoryServiceConfig{Users: store, Accounts: store, Logger: discardLogger()})

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:         discardLogger(),
		AppConfig:      &config.AppConfig{Name: "devflow-identity"},
		HealthHandler:  handlers.NewHealthHandler(registry, handlers.BuildInfo{}),
		AuthHandler:    handlers.NewAuthHandler(identity),
		UserHandler:    handlers.NewUserHandler(directory),
		AccountHandler: handlers.NewAccountHandler(directory),
	})

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return newIdentityClient(t, server.URL, 0)
}

func signIn() domain.OAuthSignIn {
	return domain.OAuthSignIn{
		Provider:          "github",
		ProviderAccountID: "x123",
		User: domain.Profile{
			Name:     "Jane Doe",
			Username: "Jane Doe!",
			Email:    "jane@example.com",
			Image:    "https://avatars.example.com/jane.png",
		},
	}
}

func TestNewIdentityClient_PanicsWithoutClient(t *testing.T) {
	assert.Panics(t, func() {
		NewIdentityClient(IdentityClientConfig{})
	})
}

func TestIdentityClient_SignInAndLookups(t *testing.T) {
	client := startService(t)
	ctx := context.Background()

	require.NoError(t, client.SignInWithOAuth(ctx, signIn()))
	require.NoError(t, client.SignInWithOAuth(ctx, signIn()))

	account, err := client.GetAccountByProvider(ctx, "x123")
	require.NoError(t, err)
	assert.Equal(t, "github", account.Provider)
	assert.Equal(t, "Jane Doe", account.Name)
	assert.False(t, account.CreatedAt.IsZero())

	user, err := client.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "jane-doe", user.Username)
	assert.Equal(t, account.UserID, user.ID)

	byID, err := client.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	accountByID, err := client.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ProviderAccountID, accountByID.ProviderAccountID)

	users, err := client.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	accounts, err := client.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, client.Check(ctx))
	assert.Equal(t, "identity-api", client.Name())
}

func TestIdentityClient_RebuildsFailureKinds(t *testing.T) {
	client := startService(t)
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		in := signIn()
		in.Provider = ""

		err := client.SignInWithOAuth(ctx, in)

		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, []string{"provider"}, validationErr.FieldErrors.Fields())
		assert.Equal(t, "Provider is required", err.Error())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.GetAccountByProvider(ctx, "unknown")

		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "Account not found", err.Error())
	})

	t.Run("conflict", func(t *testing.T) {
		in := domain.NewUser{Name: "Jane", Username: "jane", Email: "jane@example.com"}

		created, err := client.CreateUser(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "jane", created.Username)

		_, err = client.CreateUser(ctx, in)

		var requestErr *domain.RequestError
		require.ErrorAs(t, err, &requestErr)
		assert.Equal(t, http.StatusConflict, requestErr.Status)
		assert.Equal(t, "Email already exists", requestErr.Message)
		assert.False(t, requestErr.Timeout)
	})
}

func TestIdentityClient_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "non-envelope error body",
			status:     http.StatusServiceUnavailable,
			body:       "upstream unavailable",
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "HTTP error: 503",
		},
		{
			name:       "envelope error body",
			status:     http.StatusInternalServerError,
			body:       `{"success":false,"error":{"message":"An unexpected error occurred"}}`,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "An unexpected error occurred",
		},
		{
			name:       "malformed success body",
			status:     http.StatusOK,
			body:       `{"success":`,
			wantStatus: http.StatusOK,
			wantMsg:    "invalid response from identity API",
		},
		{
			name:       "success without data",
			status:     http.StatusOK,
			body:       `{"success":true}`,
			wantStatus: http.StatusOK,
			wantMsg:    "invalid response from identity API",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			client := newIdentityClient(t, server.URL, 0)

			_, err := client.GetUser(context.Background(), "u1")

			var requestErr *domain.RequestError
			require.ErrorAs(t, err, &requestErr)
			assert.Equal(t, tt.wantStatus, requestErr.Status)
			assert.Equal(t, tt.wantMsg, requestErr.Message)
		})
	}
}

func TestIdentityClient_TimeoutIsOutcomeUnknown(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client := newIdentityClient(t, server.URL, 50*time.Millisecond)

	err := client.SignInWithOAuth(context.Background(), signIn())

	require.Error(t, err)
	assert.True(t, domain.IsTimeout(err))
	assert.True(t, domain.IsRetryable(err))
}

func TestIdentityClient_PathEscaping(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"success":true,"data":{"_id":"a/b","provider":"github","providerAccountId":"x"}}`))
	}))
	t.Cleanup(server.Close)

	client := newIdentityClient(t, server.URL, 0)

	account, err := client.GetAccount(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", account.ID)
	assert.Equal(t, "/api/v1/accounts/a%2Fb", gotPath)
}
