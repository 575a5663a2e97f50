package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/goTrust/session"
)

// SessionFailure classifies a session validation outcome.
type SessionFailure int

const (
	SessionOK SessionFailure = iota
	SessionMissing
	SessionExpired
	SessionHijack
	SessionCorrupt
	SessionUnavailable
)

var (
	errSessionExpired = errors.New("session expired")
	errFingerprint    = errors.New("fingerprint mismatch")
)

// SessionResult is the flow-local validation outcome. Session is the state
// after the update, or the state that was destroyed.
type SessionResult struct {
	Failure SessionFailure
	Err     error
	Session *session.Session
}

// SessionDeps captures session validation dependencies.
type SessionDeps struct {
	Store            session.Store
	Now              func() time.Time
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	StoreTimeout     time.Duration
	// Retention keeps records past their logical expiry so an expired
	// session is reported as expired rather than unknown.
	Retention time.Duration
}

// RunValidateSession checks expiry and fingerprint inside one atomic update.
// Expired and mismatched sessions are deleted in the same update. On success
// LastActivity is extended and touch, when non-nil, may amend the session
// before it is saved.
func RunValidateSession(ctx context.Context, id string, fingerprint [32]byte, touch func(*session.Session), deps SessionDeps) SessionResult {
	sess, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (*session.Session, error) {
		return deps.Store.Update(ctx, id, func(s *session.Session) (session.Outcome, error) {
			now := deps.Now()
			if s.AbsoluteExpired(now, deps.AbsoluteLifetime) || s.IdleExpired(now, deps.IdleTimeout) {
				return session.Outcome{Op: session.OpDelete}, errSessionExpired
			}
			if subtle.ConstantTimeCompare(s.Fingerprint[:], fingerprint[:]) != 1 {
				return session.Outcome{Op: session.OpDelete}, errFingerprint
			}
			s.LastActivity = now
			if touch != nil {
				touch(s)
			}
			ttl := s.TTL(now, deps.IdleTimeout, deps.AbsoluteLifetime) + deps.Retention
			return session.Outcome{Op: session.OpSave, TTL: ttl}, nil
		})
	})

	switch {
	case err == nil:
		return SessionResult{Session: sess}
	case errors.Is(err, errSessionExpired):
		return SessionResult{Failure: SessionExpired, Session: sess}
	case errors.Is(err, errFingerprint):
		return SessionResult{Failure: SessionHijack, Session: sess}
	case errors.Is(err, session.ErrNotFound):
		return SessionResult{Failure: SessionMissing}
	case errors.Is(err, session.ErrCorrupt):
		return SessionResult{Failure: SessionCorrupt, Err: err}
	default:
		return SessionResult{Failure: SessionUnavailable, Err: err}
	}
}
