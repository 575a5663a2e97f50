package goTrust

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goTrust/internal/flows"
	"github.com/MrEthical07/goTrust/store"
)

// Authenticate checks handle and secret against the account store and applies
// the lockout policy.
//
// An unknown handle and a wrong secret both return ErrInvalidCredentials and
// cost the same argon2id work. A locked account returns *LockedError without
// touching the stored hash. Store failures return ErrDependencyTimeout.
func (e *Engine) Authenticate(ctx context.Context, handle, secret string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricAuthenticateLatency, start)

	if err := e.validateCredentialInput(handle, secret); err != nil {
		return nil, err
	}
	if err := e.throttleLogin(ctx); err != nil {
		return nil, err
	}

	res := flows.RunAuthenticate(ctx, handle, secret, e.authenticateDeps())

	if res.VerifyErr != nil {
		e.logger.WarnContext(ctx, "stored password hash could not be verified",
			"account_id", res.Account.ID,
			"error", res.VerifyErr,
		)
	}

	switch res.Failure {
	case flows.AuthOK:
		e.metricInc(MetricAuthSuccess)
		if res.Rehashed {
			e.metricInc(MetricRehashPersisted)
		}
		if err := e.emit(ctx, AuditEvent{
			ActorID: res.Account.ID,
			Action:  auditAuthenticate,
			Outcome: outcomeSuccess,
			Context: map[string]string{"rehashed": strconv.FormatBool(res.Rehashed)},
		}); err != nil {
			return nil, err
		}
		acct := res.Account
		return &acct, nil

	case flows.AuthLocked:
		e.metricInc(MetricAuthLocked)
		if err := e.emit(ctx, AuditEvent{
			ActorID:  res.Account.ID,
			Action:   auditAuthenticate,
			Outcome:  outcomeDenied,
			Severity: SeverityWarning,
			Context:  map[string]string{"reason": "locked", "remaining": res.Remaining.Round(time.Second).String()},
		}); err != nil {
			return nil, err
		}
		return nil, &LockedError{Remaining: res.Remaining}

	case flows.AuthInvalid:
		e.metricInc(MetricAuthFailure)
		ev := AuditEvent{
			ActorID: res.Account.ID,
			Action:  auditAuthenticate,
			Outcome: outcomeFailure,
			Context: map[string]string{"known_handle": strconv.FormatBool(res.Known)},
		}
		if res.Known {
			ev.Context["failed_attempts"] = strconv.Itoa(res.FailedAttempts)
		}
		if err := e.emit(ctx, ev); err != nil {
			return nil, err
		}
		if res.LockEngaged {
			e.metricInc(MetricLockEngaged)
			if err := e.emit(ctx, AuditEvent{
				ActorID:  res.Account.ID,
				Action:   auditAccountLocked,
				Outcome:  outcomeSuccess,
				Severity: SeverityWarning,
				Context: map[string]string{
					"failed_attempts": strconv.Itoa(res.FailedAttempts),
					"locked_until":    res.Account.LockedUntil.UTC().Format(time.RFC3339),
				},
			}); err != nil {
				return nil, err
			}
		}
		// The attempt that engages the lock still reports invalid
		// credentials; the next one sees the lock.
		return nil, ErrInvalidCredentials

	default:
		e.metricInc(MetricDependencyFailure)
		e.logger.ErrorContext(ctx, "authenticate: store failure", "error", res.Err)
		_ = e.emit(ctx, AuditEvent{
			ActorID: res.Account.ID,
			Action:  auditAuthenticate,
			Outcome: outcomeError,
		})
		return nil, ErrDependencyTimeout
	}
}

// ChangePassword verifies current, stores a fresh hash of next and revokes
// every session of the account. The revocation is part of the operation: if
// it fails the error is returned even though the hash was replaced.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrInvalidInput
	}
	if err := e.validateSecret(current); err != nil {
		return err
	}
	if err := e.validateSecret(next); err != nil {
		return err
	}

	unlock, err := e.accountLocks.Lock(ctx, accountID)
	if err != nil {
		return ErrDependencyTimeout
	}
	defer unlock()

	sctx, cancel := e.storeCtx(ctx)
	acct, err := e.accounts.GetAccountByID(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return e.dependencyError(ctx, "change password: load account", err)
	}

	if ok, _, err := e.hasher.Verify(acct.PasswordHash, current); err != nil || !ok {
		_ = e.emit(ctx, AuditEvent{
			ActorID: accountID,
			Action:  auditPasswordChange,
			Outcome: outcomeFailure,
		})
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return ErrInvalidInput
	}
	sctx, cancel = e.storeCtx(ctx)
	err = e.accounts.UpdatePasswordHash(sctx, accountID, hash)
	cancel()
	if err != nil {
		return e.dependencyError(ctx, "change password: persist hash", err)
	}
	e.metricInc(MetricPasswordChanged)

	revoked, revokeErr := e.InvalidateAllForAccount(ctx, accountID)
	auditErr := e.emit(ctx, AuditEvent{
		ActorID: accountID,
		Action:  auditPasswordChange,
		Outcome: outcomeSuccess,
		Context: map[string]string{"sessions_revoked": strconv.Itoa(revoked)},
	})
	if revokeErr != nil {
		return revokeErr
	}
	return auditErr
}

// UnlockAccount clears the lockout state of accountID.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrInvalidInput
	}

	unlock, err := e.accountLocks.Lock(ctx, accountID)
	if err != nil {
		return ErrDependencyTimeout
	}
	defer unlock()

	sctx, cancel := e.storeCtx(ctx)
	err = e.accounts.Unlock(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return e.dependencyError(ctx, "unlock account", err)
	}
	e.metricInc(MetricAccountUnlocked)
	return e.emit(ctx, AuditEvent{
		ActorID:  ActorIDFromContext(ctx),
		Action:   auditAccountUnlock,
		Outcome:  outcomeSuccess,
		Severity: SeverityWarning,
		Context:  map[string]string{"account_id": accountID},
	})
}

func (e *Engine) authenticateDeps() flows.AuthenticateDeps {
	return flows.AuthenticateDeps{
		Accounts:     e.accounts,
		Policy:       e.policy,
		StoreTimeout: e.config.Timeouts.Store,
		Now:          e.now,
		Lock:         e.accountLocks.Lock,
		Verify:       e.hasher.Verify,
		Dummy:        e.hasher.Dummy,
	}
}

func (e *Engine) validateCredentialInput(handle, secret string) error {
	if handle == "" || len(handle) > e.config.Input.MaxHandleBytes {
		return ErrInvalidInput
	}
	return e.validateSecret(secret)
}

func (e *Engine) validateSecret(secret string) error {
	if secret == "" || len(secret) > e.config.Input.MaxSecretBytes {
		return ErrInvalidInput
	}
	return nil
}

// dependencyError logs a store failure and returns the public sentinel.
func (e *Engine) dependencyError(ctx context.Context, op string, err error) error {
	e.metricInc(MetricDependencyFailure)
	e.logger.ErrorContext(ctx, op+" failed", "error", err)
	return ErrDependencyTimeout
}

// throttleLogin charges the caller's address. Calls without a client IP in
// ctx are not throttled here; the per-account lockout still applies.
func (e *Engine) throttleLogin(ctx context.Context) error {
	ip := clientIPFromContext(ctx)
	if ip == "" || e.loginLimiter == nil {
		return nil
	}
	err := e.allowWith(ctx, e.loginLimiter, "login:"+ip, ErrLoginRateLimited)
	if errors.Is(err, ErrLoginRateLimited) {
		e.metricInc(MetricAuthRateLimited)
		if auditErr := e.emit(ctx, AuditEvent{
			Action:   auditAuthenticate,
			Outcome:  outcomeDenied,
			Severity: SeverityWarning,
			Context:  map[string]string{"reason": "rate_limited"},
		}); auditErr != nil {
			return auditErr
		}
	}
	return err
}
