package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// Floors for newly produced hashes.
	minMemoryKB    uint32 = 64 * 1024
	minTimeCost    uint32 = 3
	minParallelism uint8  = 4
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// Ceilings applied when parsing stored hashes so a crafted record cannot
	// pin the CPU or exhaust memory during verification.
	maxParsedMemoryKB    uint64 = 1024 * 1024
	maxParsedTimeCost    uint64 = 64
	maxParsedParallelism uint64 = 64

	algorithmID = "argon2id"
)

// DefaultMaxPasswordBytes bounds the secret length accepted by Hash and Verify.
const DefaultMaxPasswordBytes = 1024

// Config holds Argon2id cost parameters. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Memory           uint32 // KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

// DefaultConfig returns the production parameters: t=3, m=64MiB, p=4.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      4,
		SaltLength:       16,
		KeyLength:        32,
		MinPasswordBytes: 8,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 produces and checks argon2id PHC strings.
type Argon2 struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg against the minimum cost floors.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh argon2id hash with a random salt.
func (a *Argon2) Hash(password string) (string, error) {
	// Secrets are hashed as raw bytes; no Unicode normalization is applied.
	if len(password) < a.config.MinPasswordBytes {
		return "", fmt.Errorf("%w: must be at least %d bytes", ErrPasswordLength, a.config.MinPasswordBytes)
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", fmt.Errorf("%w: must be at most %d bytes", ErrPasswordLength, a.config.MaxPasswordBytes)
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify recomputes the key with the parameters embedded in encodedHash and
// compares in constant time.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordLength
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the configured ones.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	switch {
	case a.config.Memory > parsed.memory,
		a.config.Time > parsed.time,
		a.config.Parallelism > parsed.parallelism,
		a.config.KeyLength != parsed.keyLength:
		return true, nil
	}
	return false, nil
}

// Params returns the configured cost parameters.
func (a *Argon2) Params() Config {
	return a.config
}

func isArgon2id(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$"+algorithmID+"$")
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: invalid PHC format", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return nil, ErrUnsupportedHash
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, fmt.Errorf("%w: missing argon2 version", ErrMalformedHash)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid argon2 version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}
	hash, err := decodeB64(parts[5])
	if err != nil || len(hash) < int(minKeyLength) {
		return nil, fmt.Errorf("%w: invalid hash", ErrMalformedHash)
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

// decodeB64 accepts both the unpadded PHC encoding and the padded variant
// written by older releases.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, fmt.Errorf("%w: invalid parameter format", ErrMalformedHash)
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: invalid parameter entry", ErrMalformedHash)
		}

		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("%w: invalid %s parameter", ErrMalformedHash, kv[0])
		}

		switch kv[0] {
		case "m":
			if v > maxParsedMemoryKB {
				return nil, fmt.Errorf("%w: memory parameter out of range", ErrMalformedHash)
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			if v > maxParsedTimeCost {
				return nil, fmt.Errorf("%w: time parameter out of range", ErrMalformedHash)
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			if v > maxParsedParallelism {
				return nil, fmt.Errorf("%w: parallelism parameter out of range", ErrMalformedHash)
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, fmt.Errorf("%w: unsupported parameter %q", ErrMalformedHash, kv[0])
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	return &params, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory must be >= %d KiB", ErrWeakParameters, minMemoryKB)
	case cfg.Time < minTimeCost:
		return fmt.Errorf("%w: time must be >= %d", ErrWeakParameters, minTimeCost)
	case cfg.Parallelism < minParallelism:
		return fmt.Errorf("%w: parallelism must be >= %d", ErrWeakParameters, minParallelism)
	case cfg.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length must be >= %d", ErrWeakParameters, minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length must be >= %d", ErrWeakParameters, minKeyLength)
	case cfg.MinPasswordBytes < 1:
		return fmt.Errorf("%w: minimum password length must be >= 1", ErrWeakParameters)
	case cfg.MaxPasswordBytes < cfg.MinPasswordBytes:
		return fmt.Errorf("%w: maximum password length below minimum", ErrWeakParameters)
	}
	return nil
}
