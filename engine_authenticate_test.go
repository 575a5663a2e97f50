package goTrust

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/password"
	"github.com/MrEthical07/goTrust/store"
)

func TestAuthenticate_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "employee")

	acct, err := env.engine.Authenticate(context.Background(), "Alice", alicePassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acct.ID != "u1" || acct.Role != "employee" {
		t.Fatalf("unexpected account %+v", acct)
	}
	if !acct.LastLogin.Equal(env.clock.Now()) {
		t.Fatalf("LastLogin = %v, want %v", acct.LastLogin, env.clock.Now())
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAuthSuccess]; got != 1 {
		t.Fatalf("auth success counter = %d, want 1", got)
	}
}

func TestAuthenticate_LockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "employee")
	ctx := context.Background()

	// The attempt that engages the lock still reports invalid credentials.
	for i := 1; i <= lockout.DefaultThreshold; i++ {
		_, err := env.engine.Authenticate(ctx, "alice", "wrong-password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := env.engine.Authenticate(ctx, "alice", alicePassword)
	var locked *LockedError
	if !errors.As(err, &locked) || !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
	if locked.Remaining != lockout.DefaultDuration {
		t.Fatalf("Remaining = %v, want %v", locked.Remaining, lockout.DefaultDuration)
	}
	if got := PublicMessage(err); got != "Account locked. Try again in 30 minutes." {
		t.Fatalf("PublicMessage = %q", got)
	}

	if got := len(env.sink.byAction(auditAccountLocked)); got != 1 {
		t.Fatalf("account_locked events = %d, want 1", got)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLockEngaged]; got != 1 {
		t.Fatalf("lock engaged counter = %d, want 1", got)
	}

	env.clock.Advance(lockout.DefaultDuration + time.Second)
	if _, err := env.engine.Authenticate(ctx, "alice", alicePassword); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	if a := env.account(t, "u1"); a.FailedAttempts != 0 || !a.LockedUntil.IsZero() {
		t.Fatalf("lock state not reset: %+v", a.Lockout())
	}
}

func TestAuthenticate_LockedAccountDoesNotTouchHash(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.addAccount(t, "u1", "alice", "employee")
	a.FailedAttempts = lockout.DefaultThreshold
	a.LockedUntil = env.clock.Now().Add(10 * time.Minute)
	env.accounts.Put(a)

	_, err := env.engine.Authenticate(context.Background(), "alice", "wrong-password")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
	if locked.Remaining != 10*time.Minute {
		t.Fatalf("Remaining = %v", locked.Remaining)
	}
	if got := env.account(t, "u1").FailedAttempts; got != lockout.DefaultThreshold {
		t.Fatalf("locked attempt changed counter to %d", got)
	}
}

func TestAuthenticate_FailuresThenSuccessResetsCounter(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "alice", "alice", "employee")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := env.engine.Authenticate(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if got := env.account(t, "alice").FailedAttempts; got != 4 {
		t.Fatalf("FailedAttempts = %d, want 4", got)
	}

	if _, err := env.engine.Authenticate(ctx, "alice", alicePassword); err != nil {
		t.Fatalf("fifth attempt with correct secret: %v", err)
	}
	a := env.account(t, "alice")
	if a.FailedAttempts != 0 || !a.LockedUntil.IsZero() {
		t.Fatalf("success did not reset lock state: %+v", a.Lockout())
	}

	// Four more failures are again below the threshold.
	for i := 0; i < 4; i++ {
		env.engine.Authenticate(ctx, "alice", "wrong-password")
	}
	if _, err := env.engine.Authenticate(ctx, "alice", alicePassword); err != nil {
		t.Fatalf("expected success after second run of failures, got %v", err)
	}
}

func TestAuthenticate_UnknownHandleIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "employee")
	ctx := context.Background()

	_, wrongSecret := env.engine.Authenticate(ctx, "alice", "wrong-password")
	_, unknown := env.engine.Authenticate(ctx, "mallory", "wrong-password")

	if wrongSecret != unknown {
		t.Fatalf("errors differ: %v vs %v", wrongSecret, unknown)
	}
	if Classify(wrongSecret) != ClassNotFoundError || Classify(unknown) != ClassNotFoundError {
		t.Fatalf("unexpected classes %s / %s", Classify(wrongSecret), Classify(unknown))
	}
	if PublicMessage(wrongSecret) != PublicMessage(unknown) {
		t.Fatal("public messages differ")
	}
}

func TestAuthenticate_AddressThrottleAcrossHandles(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Throttle.Backend = "local"
		c.Throttle.Window = time.Hour
		c.Throttle.LoginAttemptsPerIP = 3
	})
	env.addAccount(t, "u1", "alice", "employee")
	sprayer := WithClientIP(context.Background(), "198.51.100.9")

	for _, handle := range []string{"bob", "carol", "dave"} {
		if _, err := env.engine.Authenticate(sprayer, handle, "guess"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", handle, err)
		}
	}
	_, err := env.engine.Authenticate(sprayer, "alice", alicePassword)
	if !errors.Is(err, ErrLoginRateLimited) || Classify(err) != ClassLockedError {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if got := env.account(t, "u1"); got.FailedAttempts != 0 || !got.LastLogin.IsZero() {
		t.Fatalf("throttled attempt touched the account: %+v", got)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAuthRateLimited]; got != 1 {
		t.Fatalf("rate limited counter = %d, want 1", got)
	}
	ev := env.sink.byAction(auditAuthenticate)
	if last := ev[len(ev)-1]; last.Outcome != outcomeDenied || last.Context["reason"] != "rate_limited" || last.Context["client_ip"] != "198.51.100.9" {
		t.Fatalf("unexpected audit %+v", last)
	}

	// Other addresses, and callers that supply none, keep their own budget.
	if _, err := env.engine.Authenticate(WithClientIP(context.Background(), "203.0.113.7"), "alice", alicePassword); err != nil {
		t.Fatalf("other address: %v", err)
	}
	if _, err := env.engine.Authenticate(context.Background(), "alice", alicePassword); err != nil {
		t.Fatalf("no address: %v", err)
	}
}

func TestAuthenticate_AddressThrottleKeepsLockout(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Throttle.Backend = "local"
		c.Throttle.Window = time.Hour
		c.Throttle.LoginAttemptsPerIP = 2
	})
	env.addAccount(t, "u1", "alice", "employee")

	// Failures spread over many addresses still count against the account.
	for i := 1; i <= lockout.DefaultThreshold; i++ {
		ctx := WithClientIP(context.Background(), "192.0.2."+strconv.Itoa(i))
		if _, err := env.engine.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	var locked *LockedError
	if _, err := env.engine.Authenticate(WithClientIP(context.Background(), "192.0.2.99"), "alice", alicePassword); !errors.As(err, &locked) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
}

func TestAuthenticate_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cases := []struct {
		name           string
		handle, secret string
	}{
		{"empty handle", "", alicePassword},
		{"empty secret", "alice", ""},
		{"oversized handle", strings.Repeat("h", 257), alicePassword},
		{"oversized secret", "alice", strings.Repeat("s", 1025)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Authenticate(ctx, tc.handle, tc.secret)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if Classify(err) != ClassInputError {
				t.Fatalf("class = %s", Classify(err))
			}
		})
	}
}

func TestAuthenticate_LegacyBcryptIsRehashed(t *testing.T) {
	env := newTestEnv(t, nil)
	legacy, err := password.HashLegacy(alicePassword, 4)
	if err != nil {
		t.Fatalf("HashLegacy: %v", err)
	}
	env.accounts.Put(store.Account{ID: "u1", Handle: "alice", PasswordHash: legacy, Role: "user"})

	if _, err := env.engine.Authenticate(context.Background(), "alice", alicePassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	stored := env.account(t, "u1").PasswordHash
	if password.Detect(stored) != password.FormatArgon2id {
		t.Fatalf("hash was not upgraded: %q", stored)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRehashPersisted]; got != 1 {
		t.Fatalf("rehash counter = %d", got)
	}
}

type failingAccounts struct {
	AccountStore
}

func (failingAccounts) GetAccountByHandle(context.Context, string) (Account, error) {
	return Account{}, errors.New("connection refused")
}

func TestAuthenticate_StoreFailureDenies(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.accounts = failingAccounts{AccountStore: env.accounts}

	_, err := env.engine.Authenticate(context.Background(), "alice", alicePassword)
	if !errors.Is(err, ErrDependencyTimeout) {
		t.Fatalf("expected ErrDependencyTimeout, got %v", err)
	}
	if Classify(err) != ClassDependencyTimeout {
		t.Fatalf("class = %s", Classify(err))
	}
}

func TestChangePassword_RevokesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "employee")
	ctx := context.Background()

	t1 := env.login(t, "alice")
	t2 := env.login(t, "alice")

	if err := env.engine.ChangePassword(ctx, "u1", "wrong-password", "a brand new secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong current, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, "u1", alicePassword, "a brand new secret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	for _, tok := range []string{t1, t2} {
		if _, err := env.engine.ValidateSession(ctx, tok, browserSignals()); !errors.Is(err, ErrNoSession) {
			t.Fatalf("session survived password change: %v", err)
		}
	}
	if _, err := env.engine.Authenticate(ctx, "alice", alicePassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "alice", "a brand new secret"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	events := env.sink.byAction(auditPasswordChange)
	last := events[len(events)-1]
	if last.Outcome != outcomeSuccess || last.Context["sessions_revoked"] != "2" {
		t.Fatalf("unexpected audit event %+v", last)
	}
}

func TestUnlockAccount_RestoresAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "employee")
	ctx := WithActorID(context.Background(), "admin-1")

	for i := 0; i < lockout.DefaultThreshold; i++ {
		env.engine.Authenticate(ctx, "alice", "wrong-password")
	}
	if _, err := env.engine.Authenticate(ctx, "alice", alicePassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	if err := env.engine.UnlockAccount(ctx, "u1"); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "alice", alicePassword); err != nil {
		t.Fatalf("login after unlock failed: %v", err)
	}
	if err := env.engine.UnlockAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	ev := env.sink.byAction(auditAccountUnlock)
	if len(ev) != 1 || ev[0].ActorID != "admin-1" {
		t.Fatalf("unexpected unlock audit %+v", ev)
	}
}

func TestEngine_NilIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Authenticate(context.Background(), "alice", alicePassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.CheckPermission(context.Background(), "admin", "issue.read") {
		t.Fatal("nil engine granted a permission")
	}
}
