package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Legacy bcrypt support exists only so accounts imported from older systems
// can sign in once and be migrated to argon2id.

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

func isBcrypt(encodedHash string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(encodedHash, p) {
			return true
		}
	}
	return false
}

func verifyBcrypt(encodedHash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, errors.Join(ErrMalformedHash, err)
	}
}

// HashLegacy produces a bcrypt hash. It is used by import tooling and tests;
// the engine never writes bcrypt hashes itself.
func HashLegacy(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
