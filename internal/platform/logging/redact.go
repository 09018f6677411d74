package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// secretFields are attribute keys whose values are always credentials.
var secretFields = []string{
	"password", "secret", "token", "credential", "credentials",
	"apiKey", "apikey", "api_key",
	"accessToken", "access_token", "refreshToken", "refresh_token", "idToken", "id_token",
	"authorization", "auth", "bearer", "cookie", "session",
	"privateKey", "private_key", "secretKey", "secret_key",
}

// personalFields are attribute keys carrying a person's identity. Users and
// accounts are logged by id, never by these values.
var personalFields = []string{
	"email", "Email",
	"providerAccountId", "ProviderAccountID", "provider_account_id",
}

// secretPrefixes catch keys such as secret_config and private_pem.
var secretPrefixes = []string{"secret", "private"}

// secretValues catch credentials logged under innocuous keys.
var secretValues = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+$`),
	regexp.MustCompile(`(?i)^basic\s+.+$`),
}

// DefaultRedactOptions returns the masq options applied to every sink.
func DefaultRedactOptions() []masq.Option {
	opts := make([]masq.Option, 0, len(secretFields)+len(personalFields)+len(secretPrefixes)+len(secretValues))

	for _, name := range secretFields {
		opts = append(opts, masq.WithFieldName(name))
	}

	for _, name := range personalFields {
		opts = append(opts, masq.WithFieldName(name))
	}

	for _, prefix := range secretPrefixes {
		opts = append(opts, masq.WithFieldPrefix(prefix))
	}

	for _, re := range secretValues {
		opts = append(opts, masq.WithRegex(re))
	}

	return opts
}

// NewReplaceAttr returns a slog ReplaceAttr that redacts the defaults plus
// any extra options.
func NewReplaceAttr(extra ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(DefaultRedactOptions(), extra...)...)
}
