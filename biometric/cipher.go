package biometric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length.
const KeySize = 32

var (
	ErrKeySize   = errors.New("biometric: template key must be 32 bytes")
	ErrIntegrity = errors.New("biometric: template integrity check failed")
	ErrDecrypt   = errors.New("biometric: template decryption failed")
)

// Cipher seals and opens feature vectors.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("biometric: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("biometric: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts vector for the given owner and template and returns the
// sealed bytes with their integrity hash.
func (c *Cipher) Seal(accountID, templateID string, vector []float64) ([]byte, string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, "", fmt.Errorf("biometric: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, EncodeVector(vector), additionalData(accountID, templateID))
	return sealed, IntegrityHash(sealed), nil
}

// Open verifies the integrity hash and decrypts the vector.
func (c *Cipher) Open(accountID, templateID string, sealed []byte, integrity string) ([]float64, error) {
	if subtle.ConstantTimeCompare([]byte(IntegrityHash(sealed)), []byte(integrity)) != 1 {
		return nil, ErrIntegrity
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, ErrDecrypt
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], additionalData(accountID, templateID))
	if err != nil {
		return nil, ErrDecrypt
	}
	v, err := DecodeVector(plain)
	if err != nil {
		return nil, ErrDecrypt
	}
	return v, nil
}

// IntegrityHash is the lowercase hex SHA-256 of sealed.
func IntegrityHash(sealed []byte) string {
	sum := sha256.Sum256(sealed)
	return hex.EncodeToString(sum[:])
}

func additionalData(accountID, templateID string) []byte {
	aad := make([]byte, 0, len(accountID)+len(templateID)+1)
	aad = append(aad, accountID...)
	aad = append(aad, 0)
	aad = append(aad, templateID...)
	return aad
}
