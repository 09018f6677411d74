package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "punctuation and whitespace", input: "Jane Doe!", expected: "jane-doe"},
		{name: "already a slug", input: "jane-doe", expected: "jane-doe"},
		{name: "surrounding whitespace", input: "  Jane   Doe  ", expected: "jane-doe"},
		{name: "underscores are dropped", input: "jane__doe--42", expected: "janedoe-42"},
		{name: "apostrophe is dropped", input: "O'Brien", expected: "obrien"},
		{name: "dot is dropped", input: "john.doe", expected: "johndoe"},
		{name: "mixed separators collapse", input: "Jane -\t Doe", expected: "jane-doe"},
		{name: "diacritics are folded", input: "Zoë Ångström", expected: "zoe-angstrom"},
		{name: "letters without decomposition", input: "Łukasz Straße", expected: "lukasz-strasse"},
		{name: "leading and trailing symbols", input: "!!hello world??", expected: "hello-world"},
		{name: "non latin script is dropped", input: "Имя user", expected: "user"},
		{name: "empty", input: "", expected: ""},
		{name: "only symbols", input: "!@#$", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Make(tt.input))
		})
	}
}

func TestMake_Options(t *testing.T) {
	assert.Equal(t, "jane", Make("Jane Doe", MaxLength(5)))
	assert.Equal(t, "jane-d", Make("Jane Doe", MaxLength(6)))
	assert.Equal(t, "jane-doe", Make("Jane Doe", MaxLength(0)))
	assert.Equal(t, "ab", Make("a.b c", MaxLength(3)))
}

func TestMake_Deterministic(t *testing.T) {
	assert.Equal(t, Make("Some Display Name"), Make("Some Display Name"))
}
