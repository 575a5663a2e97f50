// Package lockout holds the temporal account lock state machine shared by the
// engine and every AccountStore implementation.
//
// States per account: UNLOCKED -> LOCKED(until) -> UNLOCKED. The transitions
// are pure functions over [State]; stores apply them inside their own atomic
// read-modify-write (row lock, mutex, compare-and-swap).
package lockout

import "time"

const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// State is the persisted lockout portion of an account.
type State struct {
	FailedAttempts int
	LockedUntil    time.Time // zero when unlocked
}

// Policy configures when a lock engages and how long it holds.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// Default returns the threshold-5 / 30-minute policy.
func Default() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// Locked reports whether s is locked at now and the time remaining.
func (p Policy) Locked(s State, now time.Time) (bool, time.Duration) {
	if s.LockedUntil.IsZero() || !now.Before(s.LockedUntil) {
		return false, 0
	}
	return true, s.LockedUntil.Sub(now)
}

// Normalize clears an expired lock so counting restarts from zero.
func (p Policy) Normalize(s State, now time.Time) State {
	if !s.LockedUntil.IsZero() && !now.Before(s.LockedUntil) {
		return State{}
	}
	return s
}

// Fail applies one failed attempt. The attempt that reaches the threshold
// engages the lock.
func (p Policy) Fail(s State, now time.Time) State {
	s = p.Normalize(s, now)
	if locked, _ := p.Locked(s, now); locked {
		return s
	}
	s.FailedAttempts++
	if s.FailedAttempts >= p.Threshold {
		s.LockedUntil = now.Add(p.Duration)
	}
	return s
}

// Succeed returns the state after a successful authentication.
func (p Policy) Succeed() State {
	return State{}
}

// Engaged reports whether the transition from prev to next engaged a lock.
func Engaged(prev, next State) bool {
	return next.LockedUntil.After(prev.LockedUntil) && !next.LockedUntil.IsZero()
}
