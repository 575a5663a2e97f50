package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// IDSize is the number of random bytes in a session ID.
const IDSize = 32

var ErrMalformedID = errors.New("session: malformed session id")

// NewID returns a fresh base64url session ID without padding.
func NewID() (string, error) {
	var raw [IDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	if len(id) != base64.RawURLEncoding.EncodedLen(IDSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil && len(raw) == IDSize
}
