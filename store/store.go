package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTrust/lockout"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("store: not found")
	// ErrLocked is returned by RecordLoginSuccess when a concurrent failure
	// engaged the lock between the engine's read and its write.
	ErrLocked = errors.New("store: account locked")
	// ErrConflict is returned on duplicate inserts.
	ErrConflict = errors.New("store: conflict")
	// ErrTemplateState is returned by guarded template writes when the
	// template no longer is in the state the write requires.
	ErrTemplateState = errors.New("store: template state changed")
)

// Account is the credential record for one principal.
type Account struct {
	ID             string
	Handle         string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    time.Time
	Role           string
	LastLogin      time.Time
}

// Lockout returns the lockout portion of the account.
func (a Account) Lockout() lockout.State {
	return lockout.State{FailedAttempts: a.FailedAttempts, LockedUntil: a.LockedUntil}
}

// Template is an enrolled biometric template. EncryptedVector is
// nonce||ciphertext; the plaintext vector never reaches a store.
type Template struct {
	ID                string
	AccountID         string
	EncryptedVector   []byte
	IntegrityHash     string
	Label             string
	PreviewKey        string
	IsVerified        bool
	SuccessfulMatches int
	FailedMatches     int
	EnrolledAt        time.Time
	LastSuccess       time.Time
	LastFailure       time.Time
}

// AccountStore is implemented by the caller's credential database.
type AccountStore interface {
	GetAccountByHandle(ctx context.Context, handle string) (Account, error)
	GetAccountByID(ctx context.Context, id string) (Account, error)

	// RecordLoginFailure applies policy.Fail to the stored lockout state
	// atomically and returns the resulting state.
	RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error)

	// RecordLoginSuccess resets the lockout state, stamps LastLogin and, when
	// newHash is non-empty, replaces the password hash in the same write. It
	// returns ErrLocked if the account is locked at now.
	RecordLoginSuccess(ctx context.Context, id string, policy lockout.Policy, now time.Time, newHash string) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Unlock(ctx context.Context, id string) error
}

// TemplateStore persists biometric templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t Template) error
	GetTemplate(ctx context.Context, id string) (Template, error)
	ListTemplates(ctx context.Context, accountID string) ([]Template, error)
	ListVerifiedTemplates(ctx context.Context, accountID string) ([]Template, error)
	// MarkTemplateVerified verifies a pending template and zeroes
	// FailedMatches. It returns ErrTemplateState unless the template is
	// unverified with fewer than threshold failed matches at the time of the
	// write.
	MarkTemplateVerified(ctx context.Context, id string, threshold int) (Template, error)

	// RecordMatchSuccess increments SuccessfulMatches, zeroes FailedMatches
	// and stamps LastSuccess. It returns ErrTemplateState if the template is
	// not verified at the time of the write.
	RecordMatchSuccess(ctx context.Context, id string, now time.Time) (Template, error)

	// RecordMatchFailure increments FailedMatches and stamps LastFailure.
	// Reaching threshold forces IsVerified to false.
	RecordMatchFailure(ctx context.Context, id string, now time.Time, threshold int) (Template, error)

	DeleteTemplate(ctx context.Context, id string) error
}
