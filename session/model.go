package session

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// Session is the server-side state behind a session token.
type Session struct {
	ID        string
	AccountID string
	Role      string

	// Fingerprint is fixed at creation and never rewritten.
	Fingerprint [32]byte

	CreatedAt    time.Time
	LastActivity time.Time

	StepUpVerifiedAt time.Time // zero when no step-up happened
	StepUpMethod     string
}

// IdleExpired reports whether the session has been inactive for longer than
// idle at now.
func (s *Session) IdleExpired(now time.Time, idle time.Duration) bool {
	return idle > 0 && now.Sub(s.LastActivity) > idle
}

// AbsoluteExpired reports whether the session outlived lifetime.
func (s *Session) AbsoluteExpired(now time.Time, lifetime time.Duration) bool {
	return lifetime > 0 && now.Sub(s.CreatedAt) > lifetime
}

// StepUpActive reports whether a step-up verification is still valid.
func (s *Session) StepUpActive(now time.Time, ttl time.Duration) bool {
	if s.StepUpVerifiedAt.IsZero() {
		return false
	}
	return ttl <= 0 || now.Sub(s.StepUpVerifiedAt) <= ttl
}

// TTL is the storage lifetime to apply after activity at now: the idle window
// capped by what remains of the absolute lifetime.
func (s *Session) TTL(now time.Time, idle, lifetime time.Duration) time.Duration {
	ttl := idle
	if lifetime > 0 {
		remaining := s.CreatedAt.Add(lifetime).Sub(now)
		if ttl <= 0 || remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Signals are the client-declared attributes a fingerprint is derived from.
type Signals struct {
	UserAgent      string
	AcceptLanguage string
	Platform       string
	DeviceID       string
	RemoteIP       string
}

// Fingerprint digests the signals. RemoteIP only participates when
// includeIP is set, since mobile clients change address mid-session.
func Fingerprint(sig Signals, includeIP bool) [32]byte {
	h := sha256.New()
	write := func(v string) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(v)))
		h.Write(n[:])
		h.Write([]byte(v))
	}
	write(sig.UserAgent)
	write(sig.AcceptLanguage)
	write(sig.Platform)
	write(sig.DeviceID)
	if includeIP {
		write(sig.RemoteIP)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
