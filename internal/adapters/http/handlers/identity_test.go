package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/memory"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

const signInBody = `{
	"provider": "github",
	"providerAccountId": "x123",
	"user": {"name": "Jane Doe", "username": "Jane Doe!", "email": "jane@example.com"}
}`

// respondPlain renders failures with their taxonomy status and message.
func respondPlain(c *gin.Context, err error) {
	failure := domain.Classify(err)
	c.JSON(failure.StatusCode(), dto.Failed(failure.Error(), nil))
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorBody  `json:"error"`
}

func setupIdentityRouter(t *testing.T) *gin.Engine {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	identity := app.NewIdentityService(app.IdentityServiceConfig{Store: store, Logger: logger})
	directory := app.NewDirectoryService(app.DirectoryServiceConfig{Users: store, Accounts: store, Logger: logger})

	router := gin.New()
	api := router.Group("/api/v1")
	NewAuthHandler(identity).RegisterAuthRoutes(api, respondPlain)
	NewUserHandler(directory).RegisterUserRoutes(api, respondPlain)
	NewAccountHandler(directory).RegisterAccountRoutes(api, respondPlain)

	return router
}

func serve(t *testing.T, router *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())

	return w.Code, env
}

func TestAuthHandler_SignInWithOAuth(t *testing.T) {
	router := setupIdentityRouter(t)

	status, env := serve(t, router, http.MethodPost, "/api/v1/auth/signin-with-oauth", signInBody)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Empty(t, env.Data)

	status, env = serve(t, router, http.MethodPost, "/api/v1/accounts/provider", `{"providerAccountId":"x123"}`)
	require.Equal(t, http.StatusOK, status)

	var account dto.Account
	require.NoError(t, json.Unmarshal(env.Data, &account))
	assert.Equal(t, "github", account.Provider)
	assert.Equal(t, "Jane Doe", account.Name)

	status, env = serve(t, router, http.MethodPost, "/api/v1/users/email", `{"email":"jane@example.com"}`)
	require.Equal(t, http.StatusOK, status)

	var user dto.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "jane-doe", user.Username)
	assert.Equal(t, account.UserID, user.ID)
}

func TestAuthHandler_SignInWithOAuth_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "empty provider",
			body:    `{"provider":"","providerAccountId":"x123","user":{"name":"Jane","username":"jane","email":"jane@example.com"}}`,
			wantMsg: "Provider is required",
		},
		{
			name:    "malformed body",
			body:    `{"provider":`,
			wantMsg: "Body must be a valid JSON document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupIdentityRouter(t)

			status, env := serve(t, router, http.MethodPost, "/api/v1/auth/signin-with-oauth", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantMsg, env.Error.Message)

			_, users := serve(t, router, http.MethodGet, "/api/v1/users", "")
			assert.JSONEq(t, `[]`, string(users.Data))
		})
	}
}

func TestUserHandler_CreateAndGet(t *testing.T) {
	router := setupIdentityRouter(t)
	body := `{"name":"Jane","username":"Jane Doe","email":"jane@example.com"}`

	status, env := serve(t, router, http.MethodPost, "/api/v1/users", body)
	require.Equal(t, http.StatusCreated, status)

	var created dto.User
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "jane-doe", created.Username)

	status, env = serve(t, router, http.MethodGet, "/api/v1/users/"+created.ID, "")
	require.Equal(t, http.StatusOK, status)

	var fetched dto.User
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, created.ID, fetched.ID)

	status, env = serve(t, router, http.MethodPost, "/api/v1/users", body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Email already exists", env.Error.Message)

	status, env = serve(t, router, http.MethodGet, "/api/v1/users", "")
	require.Equal(t, http.StatusOK, status)

	var users []dto.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 1)
}

func TestUserHandler_NotFound(t *testing.T) {
	router := setupIdentityRouter(t)

	status, env := serve(t, router, http.MethodGet, "/api/v1/users/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", env.Error.Message)

	status, env = serve(t, router, http.MethodPost, "/api/v1/users/email", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, env.Error.Message, "User not found")
}

func TestAccountHandler_Lookups(t *testing.T) {
	router := setupIdentityRouter(t)

	status, env := serve(t, router, http.MethodPost, "/api/v1/accounts/provider", `{"providerAccountId":"unknown"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Account not found", env.Error.Message)

	status, _ = serve(t, router, http.MethodPost, "/api/v1/accounts/provider", `{"providerAccountId":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = serve(t, router, http.MethodPost, "/api/v1/auth/signin-with-oauth", signInBody)
	require.Equal(t, http.StatusOK, status)

	status, env = serve(t, router, http.MethodGet, "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, status)

	var accounts []dto.Account
	require.NoError(t, json.Unmarshal(env.Data, &accounts))
	require.Len(t, accounts, 1)

	status, env = serve(t, router, http.MethodGet, "/api/v1/accounts/"+accounts[0].ID, "")
	require.Equal(t, http.StatusOK, status)

	var account dto.Account
	require.NoError(t, json.Unmarshal(env.Data, &account))
	assert.Equal(t, accounts[0], account)
}
