// Package slug turns display strings into lower-case, hyphen-separated,
// URL-safe tokens.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Option configures Make.
type Option func(*config)

type config struct {
	maxLength int
}

// MaxLength caps the slug length in runes. Zero means no limit.
func MaxLength(n int) Option {
	return func(c *config) {
		c.maxLength = n
	}
}

// foldings covers letters that have no canonical decomposition.
var foldings = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o",
	"ł", "l", "Ł", "l",
	"đ", "d", "Đ", "d",
)

// Make lower-cases s, folds diacritics and drops every rune that is not a
// letter, digit, whitespace or hyphen. Runs of whitespace and hyphens collapse
// into a single "-", and leading or trailing hyphens are trimmed. "Jane Doe!"
// becomes "jane-doe" and "O'Brien" becomes "obrien".
func Make(s string, opts ...Option) string {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		foldings.Replace(s),
	)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))

	pendingSep := false
	count := 0

	for _, r := range strings.ToLower(folded) {
		if isSeparator(r) {
			pendingSep = count > 0
			continue
		}

		if !isSlugRune(r) {
			continue
		}

		if pendingSep {
			if cfg.maxLength > 0 && count+2 > cfg.maxLength {
				break
			}

			b.WriteByte('-')
			count++
			pendingSep = false
		}

		if cfg.maxLength > 0 && count >= cfg.maxLength {
			break
		}

		b.WriteRune(r)
		count++
	}

	return b.String()
}

// isSlugRune reports whether r survives into the slug unchanged.
func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// isSeparator reports whether r splits words in the slug.
func isSeparator(r rune) bool {
	return r == '-' || unicode.IsSpace(r)
}
