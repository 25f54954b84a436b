package cryptox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/casekeeper/internal/common"
)

// SaltSize is the number of random bytes in a new salt.
const SaltSize = 16

const saltScheme = "argon2id"

var ErrMalformedSalt = errors.New("malformed salt")

// KDFParams is the argon2id work factor.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams are used for salts created without explicit parameters.
var DefaultKDFParams = KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}

// Salt is a per-user random value together with the work factor that was
// current when it was created. Keeping the parameters inside the salt means
// a user's key stays derivable after the defaults change.
type Salt struct {
	Params KDFParams
	Value  []byte
}

// NewSalt creates a random salt bound to params. Zero fields fall back to
// DefaultKDFParams.
func NewSalt(params KDFParams) Salt {
	if params.Time == 0 {
		params.Time = DefaultKDFParams.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultKDFParams.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = DefaultKDFParams.Threads
	}
	return Salt{Params: params, Value: common.GenerateRandByteArray(SaltSize)}
}

// String encodes the salt in PHC form:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<base64 salt>
func (s Salt) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s",
		saltScheme, 0x13, s.Params.MemoryKiB, s.Params.Time, s.Params.Threads,
		base64.RawStdEncoding.EncodeToString(s.Value))
}

// ParseSalt decodes the output of Salt.String.
func ParseSalt(encoded string) (Salt, error) {
	parts := strings.Split(encoded, "$")
	// "", scheme, version, params, salt
	if len(parts) != 5 || parts[0] != "" || parts[1] != saltScheme {
		return Salt{}, ErrMalformedSalt
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != 0x13 {
		return Salt{}, fmt.Errorf("%w: version %q", ErrMalformedSalt, parts[2])
	}

	var s Salt
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &s.Params.MemoryKiB, &s.Params.Time, &s.Params.Threads); err != nil {
		return Salt{}, fmt.Errorf("%w: params %q", ErrMalformedSalt, parts[3])
	}
	if s.Params.MemoryKiB == 0 || s.Params.Time == 0 || s.Params.Threads == 0 {
		return Salt{}, fmt.Errorf("%w: zero work factor", ErrMalformedSalt)
	}

	value, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(value) == 0 {
		return Salt{}, fmt.Errorf("%w: value", ErrMalformedSalt)
	}
	s.Value = value
	return s, nil
}
