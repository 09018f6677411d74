package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/jsamuelsen/devflow-identity/internal/adapters/http"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/handlers"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/memory"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// startService runs the real router over an in-memory store and returns its
// base URL.
func startService(t *testing.T) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(store))

	identity := app.NewIdentityService(app.IdentityServiceConfig{Store: store, Logger: logger})
	directory := app.NewDirectoryService(app.DirectoryServiceConfig{Users: store, Accounts: store, Logger: logger})

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:         logger,
		AppConfig:      &config.AppConfig{Name: "devflow-identity"},
		HealthHandler:  handlers.NewHealthHandler(registry, handlers.BuildInfo{}),
		AuthHandler:    handlers.NewAuthHandler(identity),
		UserHandler:    handlers.NewUserHandler(directory),
		AccountHandler: handlers.NewAccountHandler(directory),
	})

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return server.URL
}

type result struct {
	out    bytes.Buffer
	errOut bytes.Buffer
	err    error
}

func execute(t *testing.T, baseURL string, args ...string) *result {
	t.Helper()

	r := &result{}
	cmd := newRootCmd(&r.out, &r.errOut)
	cmd.SetArgs(append([]string{"--profile", "test", "--base-url", baseURL, "--log-level", "error"}, args...))
	r.err = cmd.Execute()

	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string              `json:"message"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, buf *bytes.Buffer) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.NewDecoder(buf).Decode(&env))

	return env
}

func signInArgs() []string {
	return []string{
		"signin",
		"--provider", "github",
		"--provider-account-id", "x123",
		"--name", "Jane Doe",
		"--username", "Jane Doe",
		"--email", "jane@example.com",
	}
}

func TestIdentityctl_SignInAndLookups(t *testing.T) {
	baseURL := startService(t)

	r := execute(t, baseURL, signInArgs()...)
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"success":true}`, r.out.String())

	r = execute(t, baseURL, "user-by-email", "jane@example.com")
	require.NoError(t, r.err)

	env := decode(t, &r.out)
	assert.True(t, env.Success)

	var user struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "jane-doe", user.Username)

	r = execute(t, baseURL, "account-by-provider", "x123")
	require.NoError(t, r.err)

	var account struct {
		UserID   string `json:"userId"`
		Provider string `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(decode(t, &r.out).Data, &account))
	assert.Equal(t, user.ID, account.UserID)
	assert.Equal(t, "github", account.Provider)

	for _, list := range []string{"users", "accounts"} {
		r = execute(t, baseURL, list)
		require.NoError(t, r.err, list)

		var items []json.RawMessage
		require.NoError(t, json.Unmarshal(decode(t, &r.out).Data, &items))
		assert.Len(t, items, 1, list)
	}
}

func TestIdentityctl_Failures(t *testing.T) {
	baseURL := startService(t)

	tests := []struct {
		name       string
		args       []string
		wantStatus int
		wantMsg    string
		wantField  string
	}{
		{
			name:       "unknown user",
			args:       []string{"user-by-email", "ghost@example.com"},
			wantStatus: http.StatusNotFound,
			wantMsg:    "User not found",
		},
		{
			name:       "unknown account",
			args:       []string{"account-by-provider", "nope"},
			wantStatus: http.StatusNotFound,
			wantMsg:    "Account not found",
		},
		{
			name:       "invalid email",
			args:       []string{"user-by-email", "not-an-email"},
			wantStatus: http.StatusBadRequest,
			wantField:  "email",
		},
		{
			name:       "missing sign-in fields",
			args:       []string{"signin", "--email", "jane@example.com"},
			wantStatus: http.StatusBadRequest,
			wantField:  "provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := execute(t, baseURL, tt.args...)

			var failure *failureError
			require.ErrorAs(t, r.err, &failure)
			assert.Equal(t, tt.wantStatus, failure.Status)
			assert.Empty(t, r.out.String())

			// The failure log precedes the envelope on errOut.
			out := r.errOut.Bytes()
			start := bytes.Index(out, []byte("{\n"))
			require.GreaterOrEqual(t, start, 0)

			env := decode(t, bytes.NewBuffer(out[start:]))
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}

			if tt.wantField != "" {
				assert.Contains(t, env.Error.Details, tt.wantField)
			}
		})
	}
}

func TestIdentityctl_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	r := execute(t, baseURL, "users")

	var failure *failureError
	require.ErrorAs(t, r.err, &failure)
	assert.Equal(t, http.StatusBadGateway, failure.Status)
}

func TestIdentityctl_InvalidFlags(t *testing.T) {
	r := execute(t, "not-a-url", "users")

	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "identityapi.baseurl")
}
