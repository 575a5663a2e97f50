// Package throttle caps how often a key (an account, a client address) may
// attempt a guarded operation.
//
// Two implementations are provided:
//
//   - Local: token buckets held in process memory, one per key.
//   - Redis: fixed-window counters (INCR + EXPIRE on first hit) shared by all
//     replicas.
//
// Callers only see [Limiter]; a throttled call returns [ErrLimited] and a
// backend failure returns an error wrapping [ErrUnavailable].
package throttle

import (
	"context"
	"errors"
)

var (
	ErrLimited     = errors.New("throttle: limit exceeded")
	ErrUnavailable = errors.New("throttle: backend unavailable")
)

// Limiter consumes one unit of budget for key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Nop never throttles.
type Nop struct{}

func (Nop) Allow(context.Context, string) error { return nil }
