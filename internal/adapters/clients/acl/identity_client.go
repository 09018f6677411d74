package acl

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
)

const apiPrefix = "/api/v1"

// IdentityClientConfig contains configuration for the identity client.
type IdentityClientConfig struct {
	// Client is the resilient client. Its BaseURL points at the identity
	// service root.
	Client *clients.Client

	// Logger is the structured logger.
	Logger *slog.Logger
}

// IdentityClient calls the identity API and translates its responses to
// domain types.
type IdentityClient struct {
	client *clients.Client
	logger *slog.Logger
}

// NewIdentityClient creates an identity client.
// Panics if Client is nil. Defaults logger to slog.Default() if nil.
func NewIdentityClient(cfg IdentityClientConfig) *IdentityClient {
	if cfg.Client == nil {
		panic("IdentityClient: Client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IdentityClient{
		client: cfg.Client,
		logger: logger.With(slog.String("component", "acl.IdentityClient")),
	}
}

// SignInWithOAuth reconciles a provider identity with the remote service.
// A *domain.RequestError with Timeout set means the sign-in may or may not
// have been applied; repeating it is safe.
func (c *IdentityClient) SignInWithOAuth(ctx context.Context, in domain.OAuthSignIn) error {
	return c.call(ctx, http.MethodPost, "/auth/signin-with-oauth", in, nil)
}

// GetUserByEmail fetches the user owning email.
func (c *IdentityClient) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return c.user(ctx, http.MethodPost, "/users/email", domain.EmailLookup{Email: email})
}

// GetAccountByProvider fetches the account linked to providerAccountID.
func (c *IdentityClient) GetAccountByProvider(ctx context.Context, providerAccountID string) (*domain.Account, error) {
	return c.account(ctx, http.MethodPost, "/accounts/provider",
		domain.ProviderAccountLookup{ProviderAccountID: providerAccountID})
}

// GetUser fetches a user by ID.
func (c *IdentityClient) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return c.user(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
}

// CreateUser creates a user outside the sign-in path.
func (c *IdentityClient) CreateUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	return c.user(ctx, http.MethodPost, "/users", in)
}

// ListUsers fetches every user.
func (c *IdentityClient) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []userResponse
	if err := c.call(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}

	return translateSlice(users, (*userResponse).toDomain), nil
}

// GetAccount fetches an account by ID.
func (c *IdentityClient) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return c.account(ctx, http.MethodGet, "/accounts/"+url.PathEscape(id), nil)
}

// ListAccounts fetches every linked account.
func (c *IdentityClient) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var accounts []accountResponse
	if err := c.call(ctx, http.MethodGet, "/accounts", nil, &accounts); err != nil {
		return nil, err
	}

	return translateSlice(accounts, (*accountResponse).toDomain), nil
}

// Name returns the health check name for this client.
func (c *IdentityClient) Name() string {
	return "identity-api"
}

// Check reports whether the remote service is ready.
func (c *IdentityClient) Check(ctx context.Context) error {
	_, err := c.client.Send(ctx, clients.SendRequest{Method: http.MethodGet, Path: "/-/ready"})
	return err
}

func (c *IdentityClient) user(ctx context.Context, method, path string, body any) (*domain.User, error) {
	var dto userResponse
	if err := c.call(ctx, method, path, body, &dto); err != nil {
		return nil, err
	}

	user := dto.toDomain()

	return &user, nil
}

func (c *IdentityClient) account(ctx context.Context, method, path string, body any) (*domain.Account, error) {
	var dto accountResponse
	if err := c.call(ctx, method, path, body, &dto); err != nil {
		return nil, err
	}

	account := dto.toDomain()

	return &account, nil
}

// call sends one request and decodes the envelope's data into out.
func (c *IdentityClient) call(ctx context.Context, method, path string, body, out any) error {
	path = apiPrefix + path
	logging.Trace(ctx, "identity api call", slog.String("method", method), slog.String("path", path))

	resp, err := c.client.Send(ctx, clients.SendRequest{Method: method, Path: path, Body: body})
	if err != nil {
		failure := translateFailure(resp, err)
		c.logger.DebugContext(ctx, "identity api call failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", failure.Error()),
		)

		return failure
	}

	return decodeData(resp, out)
}
