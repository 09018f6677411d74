package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients/acl"
	httpadapter "github.com/jsamuelsen/devflow-identity/internal/adapters/http"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
)

// failureError reports a failed call whose envelope was already written.
type failureError struct {
	Status int
}

func (e *failureError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.Status)
}

type rootOptions struct {
	profile  string
	baseURL  string
	timeout  time.Duration
	logLevel string

	out    io.Writer
	errOut io.Writer

	logger *slog.Logger
	client *acl.IdentityClient
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, errOut: errOut}

	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cmd := &cobra.Command{
		Use:           "identityctl",
		Short:         "Call the devflow identity API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.connect()
		},
	}

	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.profile, "profile", profile, "configuration profile")
	flags.StringVar(&opts.baseURL, "base-url", "", "identity API root; overrides identity_api.base_url")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-call deadline; overrides client.timeout")
	flags.StringVar(&opts.logLevel, "log-level", "", "trace, debug, info, warn or error")

	cmd.AddCommand(
		newSignInCmd(opts),
		newUserByEmailCmd(opts),
		newAccountByProviderCmd(opts),
		newUsersCmd(opts),
		newAccountsCmd(opts),
	)

	return cmd
}

// connect loads configuration, applies flag overrides and builds the client.
func (o *rootOptions) connect() error {
	cfg, err := config.Load(o.profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if o.baseURL != "" {
		cfg.IdentityAPI.BaseURL = o.baseURL
	}

	if o.timeout > 0 {
		cfg.Client.Timeout = o.timeout
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	o.logger = logging.NewWithWriter(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  "pretty",
		Service: "identityctl",
		Version: Version,
	}, o.errOut)

	client, err := clients.New(&clients.Config{
		BaseURL:     cfg.IdentityAPI.BaseURL,
		ServiceName: cfg.IdentityAPI.Name,
		Timeout:     cfg.Client.Timeout,
		Circuit:     cfg.Client.CircuitBreaker,
		Transport:   cfg.Client.Transport,
		Logger:      o.logger,
	})
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}

	o.client = acl.NewIdentityClient(acl.IdentityClientConfig{Client: client, Logger: o.logger})

	return nil
}

// render writes a success envelope around data to out.
func (o *rootOptions) render(data any) error {
	return writeJSON(o.out, dto.OK(data))
}

// fail writes the failure envelope for err to errOut.
func (o *rootOptions) fail(cmd *cobra.Command, err error) error {
	ctx := logging.WithContext(cmd.Context(), o.logger)
	resp := httpadapter.TranslateInternal(ctx, err)

	if writeErr := writeJSON(o.errOut, resp.Envelope); writeErr != nil {
		return writeErr
	}

	return &failureError{Status: resp.Status}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
