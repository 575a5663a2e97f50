package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/store"
)

// AuthFailure classifies an authenticate outcome.
type AuthFailure int

const (
	AuthOK AuthFailure = iota
	// AuthInvalid covers an unknown handle and a wrong secret.
	AuthInvalid
	AuthLocked
	AuthUnavailable
)

// AuthenticateResult is the flow-local authenticate outcome.
type AuthenticateResult struct {
	Failure AuthFailure
	Err     error

	Account store.Account
	// Known is false when the handle matched no account.
	Known bool

	Remaining      time.Duration
	FailedAttempts int
	LockEngaged    bool
	Rehashed       bool
	// VerifyErr is set when the stored hash could not be checked at all
	// (unknown format, malformed record).
	VerifyErr error
}

// AuthenticateDeps captures authenticate dependencies.
type AuthenticateDeps struct {
	Accounts     store.AccountStore
	Policy       lockout.Policy
	StoreTimeout time.Duration
	Now          func() time.Time

	// Lock serializes attempts on one account inside this process.
	Lock func(ctx context.Context, key string) (func(), error)

	Verify func(stored, secret string) (ok bool, rehash string, err error)
	Dummy  func(secret string)
}

// RunAuthenticate looks the handle up, enforces the lock, verifies the secret
// and applies the counter transition through the store's atomic operations.
func RunAuthenticate(ctx context.Context, handle, secret string, deps AuthenticateDeps) AuthenticateResult {
	acct, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (store.Account, error) {
		return deps.Accounts.GetAccountByHandle(ctx, handle)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			deps.Dummy(secret)
			return AuthenticateResult{Failure: AuthInvalid}
		}
		return AuthenticateResult{Failure: AuthUnavailable, Err: err}
	}

	unlock, err := deps.Lock(ctx, acct.ID)
	if err != nil {
		return AuthenticateResult{Failure: AuthUnavailable, Err: err, Known: true}
	}
	defer unlock()

	// Re-read under the key lock so the lock check sees writes from
	// attempts that finished while this one waited.
	acct, err = withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (store.Account, error) {
		return deps.Accounts.GetAccountByID(ctx, acct.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			deps.Dummy(secret)
			return AuthenticateResult{Failure: AuthInvalid}
		}
		return AuthenticateResult{Failure: AuthUnavailable, Err: err, Known: true}
	}

	now := deps.Now()
	state := acct.Lockout()
	if locked, remaining := deps.Policy.Locked(state, now); locked {
		return AuthenticateResult{
			Failure:        AuthLocked,
			Account:        acct,
			Known:          true,
			Remaining:      remaining,
			FailedAttempts: state.FailedAttempts,
		}
	}
	state = deps.Policy.Normalize(state, now)

	ok, rehash, verifyErr := deps.Verify(acct.PasswordHash, secret)
	if verifyErr != nil {
		// An unparseable hash costs the same as a real comparison.
		deps.Dummy(secret)
		ok, rehash = false, ""
	}

	if !ok {
		next, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (lockout.State, error) {
			return deps.Accounts.RecordLoginFailure(ctx, acct.ID, deps.Policy, now)
		})
		if err != nil {
			return AuthenticateResult{Failure: AuthUnavailable, Err: err, Account: acct, Known: true, VerifyErr: verifyErr}
		}
		acct.FailedAttempts, acct.LockedUntil = next.FailedAttempts, next.LockedUntil
		return AuthenticateResult{
			Failure:        AuthInvalid,
			Account:        acct,
			Known:          true,
			FailedAttempts: next.FailedAttempts,
			LockEngaged:    lockout.Engaged(state, next),
			VerifyErr:      verifyErr,
		}
	}

	_, err = withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, deps.Accounts.RecordLoginSuccess(ctx, acct.ID, deps.Policy, now, rehash)
	})
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			// A concurrent failure from another process engaged the lock
			// between our read and our write.
			remaining := deps.Policy.Duration
			if fresh, ferr := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (store.Account, error) {
				return deps.Accounts.GetAccountByID(ctx, acct.ID)
			}); ferr == nil {
				if locked, r := deps.Policy.Locked(fresh.Lockout(), now); locked {
					remaining = r
				}
			}
			return AuthenticateResult{Failure: AuthLocked, Account: acct, Known: true, Remaining: remaining}
		}
		return AuthenticateResult{Failure: AuthUnavailable, Err: err, Account: acct, Known: true}
	}

	acct.FailedAttempts = 0
	acct.LockedUntil = time.Time{}
	acct.LastLogin = now
	if rehash != "" {
		acct.PasswordHash = rehash
	}
	return AuthenticateResult{Account: acct, Known: true, Rehashed: rehash != ""}
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
