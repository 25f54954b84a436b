package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSalt_DefaultsAndRandomness(t *testing.T) {
	a := NewSalt(KDFParams{})
	b := NewSalt(KDFParams{})

	assert.Equal(t, DefaultKDFParams, a.Params)
	assert.Len(t, a.Value, SaltSize)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestSalt_StringParseRoundTrip(t *testing.T) {
	s := NewSalt(KDFParams{Time: 3, MemoryKiB: 32 * 1024, Threads: 2})
	encoded := s.String()

	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=32768,t=3,p=2$"), encoded)

	parsed, err := ParseSalt(encoded)
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
}

func TestParseSalt_Malformed(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"$2a$12$abcdefghijklmnopqrstuv",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA",
		"$argon2id$v=19$m=x,t=1,p=4$c2FsdA",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA",
		"$argon2id$v=19$m=65536,t=1,p=4$",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!",
	}
	for _, c := range cases {
		_, err := ParseSalt(c)
		assert.ErrorIs(t, err, ErrMalformedSalt, "input %q", c)
	}
}
