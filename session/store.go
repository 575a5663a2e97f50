package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no live session has the given ID.
	ErrNotFound = errors.New("session: not found")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session: store unavailable")
)

// Op tells Update what to do with the session after the callback returns.
type Op uint8

const (
	// OpLeave writes nothing.
	OpLeave Op = iota
	// OpSave persists the (possibly modified) session with Outcome.TTL.
	OpSave
	// OpDelete removes the session.
	OpDelete
)

// Outcome is returned by an Update callback.
type Outcome struct {
	Op  Op
	TTL time.Duration
}

// UpdateFunc inspects and may modify s. The returned Outcome is applied even
// when err is non-nil, so a callback can delete a session and report why in
// one step.
type UpdateFunc func(s *Session) (Outcome, error)

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)

	// Update runs fn against the current record atomically with respect to
	// other writers of the same ID. It returns the session as fn left it and
	// fn's error.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error)

	Delete(ctx context.Context, id string) error

	// DeleteAllForAccount removes every session of accountID and reports how
	// many were live.
	DeleteAllForAccount(ctx context.Context, accountID string) (int, error)
}
