package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

var (
	ErrUnsupportedHash = errors.New("unsupported password hash format")
	ErrMalformedHash   = errors.New("malformed password hash")
	ErrPasswordLength  = errors.New("password length out of range")
	ErrWeakParameters  = errors.New("password hash parameters below minimum")
)

// Format names the encoding family of a stored hash.
type Format string

const (
	FormatArgon2id Format = "argon2id"
	FormatBcrypt   Format = "bcrypt"
	FormatUnknown  Format = "unknown"
)

// Detect inspects the prefix of a stored hash.
func Detect(encodedHash string) Format {
	switch {
	case isArgon2id(encodedHash):
		return FormatArgon2id
	case isBcrypt(encodedHash):
		return FormatBcrypt
	default:
		return FormatUnknown
	}
}

// Hasher is the credential hashing entry point: argon2id for new hashes,
// bcrypt accepted on verify for migration.
type Hasher struct {
	argon *Argon2
	dummy string
}

// NewHasher builds a Hasher and precomputes the dummy hash used to equalize
// timing for unknown accounts.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	dummy, err := a.Hash(base64.RawURLEncoding.EncodeToString(raw))
	if err != nil {
		return nil, err
	}

	return &Hasher{argon: a, dummy: dummy}, nil
}

// Hash returns a fresh argon2id PHC string.
func (h *Hasher) Hash(secret string) (string, error) {
	return h.argon.Hash(secret)
}

// Verify checks secret against stored. When the secret matches and stored is
// a legacy format or weaker than the current parameters, rehash carries a
// freshly computed argon2id hash for the caller to persist.
func (h *Hasher) Verify(stored, secret string) (ok bool, rehash string, err error) {
	switch Detect(stored) {
	case FormatArgon2id:
		ok, err = h.argon.Verify(secret, stored)
		if err != nil || !ok {
			return false, "", err
		}
		upgrade, err := h.argon.NeedsUpgrade(stored)
		if err != nil || !upgrade {
			return true, "", nil
		}
	case FormatBcrypt:
		ok, err = verifyBcrypt(stored, secret)
		if err != nil || !ok {
			return false, "", err
		}
	default:
		return false, "", ErrUnsupportedHash
	}

	rehash, err = h.argon.Hash(secret)
	if err != nil {
		// The secret matched; failing to produce an upgrade must not fail
		// the sign-in.
		return true, "", nil
	}
	return true, rehash, nil
}

// Dummy burns the same work as a real argon2id verification and always
// reports a mismatch.
func (h *Hasher) Dummy(secret string) {
	if len(secret) > h.argon.config.MaxPasswordBytes {
		secret = secret[:h.argon.config.MaxPasswordBytes]
	}
	_, _ = h.argon.Verify(secret, h.dummy)
}

// Params exposes the configured argon2id parameters.
func (h *Hasher) Params() Config {
	return h.argon.Params()
}
