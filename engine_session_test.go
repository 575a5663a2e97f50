package goTrust

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSession_CreateAndValidate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "manager")
	token := env.login(t, "alice")

	res, err := env.engine.ValidateSession(context.Background(), token, browserSignals())
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if res.AccountID != "u1" || res.Role != "manager" || res.StepUpActive {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSession_IdleWindowSlides(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		env.clock.Advance(20 * time.Minute)
		if _, err := env.engine.ValidateSession(ctx, token, browserSignals()); err != nil {
			t.Fatalf("validate after %d x 20m: %v", i+1, err)
		}
	}
}

func TestSession_IdleExpiryDestroys(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")
	ctx := context.Background()

	env.clock.Advance(31 * time.Minute)
	if _, err := env.engine.ValidateSession(ctx, token, browserSignals()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, token, browserSignals()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestSession_AbsoluteLifetime(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")
	ctx := context.Background()

	// Activity every 25 minutes keeps the idle window open but cannot pass
	// the absolute cap.
	var err error
	for elapsed := time.Duration(0); elapsed <= 13*time.Hour; elapsed += 25 * time.Minute {
		env.clock.Advance(25 * time.Minute)
		if _, err = env.engine.ValidateSession(ctx, token, browserSignals()); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired past the absolute lifetime, got %v", err)
	}
}

func TestSession_FingerprintMismatchDestroys(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")
	ctx := context.Background()

	stolen := browserSignals()
	stolen.UserAgent = "curl/8.5.0"
	_, err := env.engine.ValidateSession(ctx, token, stolen)
	if !errors.Is(err, ErrHijackSuspected) {
		t.Fatalf("expected ErrHijackSuspected, got %v", err)
	}
	if Classify(err) != ClassHijackSuspected {
		t.Fatalf("class = %s", Classify(err))
	}

	// The legitimate client is signed out too.
	if _, err := env.engine.ValidateSession(ctx, token, browserSignals()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after hijack, got %v", err)
	}

	ev := env.sink.byAction(auditSessionHijack)
	if len(ev) != 1 || ev[0].Severity != SeverityCritical {
		t.Fatalf("expected one critical hijack event, got %+v", ev)
	}
	if !strings.Contains(env.logs.String(), `"level":"CRITICAL"`) {
		t.Fatalf("hijack not logged at CRITICAL: %s", env.logs.String())
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSessionHijack]; got != 1 {
		t.Fatalf("hijack counter = %d", got)
	}
}

func TestSession_RemoteIPIgnoredByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")

	roamed := browserSignals()
	roamed.RemoteIP = "198.51.100.20"
	if _, err := env.engine.ValidateSession(context.Background(), token, roamed); err != nil {
		t.Fatalf("address change rejected: %v", err)
	}
}

func TestSession_RemoteIPWhenConfigured(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session.FingerprintIncludeIP = true })
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")

	roamed := browserSignals()
	roamed.RemoteIP = "198.51.100.20"
	if _, err := env.engine.ValidateSession(context.Background(), token, roamed); !errors.Is(err, ErrHijackSuspected) {
		t.Fatalf("expected ErrHijackSuspected, got %v", err)
	}
}

func TestSession_MalformedAndUnknownTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, tok := range []string{"", "not-a-session", strings.Repeat("A", 43)} {
		if _, err := env.engine.ValidateSession(ctx, tok, browserSignals()); !errors.Is(err, ErrNoSession) {
			t.Fatalf("token %q: expected ErrNoSession, got %v", tok, err)
		}
	}
}

func TestSession_Destroy(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")
	ctx := context.Background()

	if err := env.engine.DestroySession(ctx, token); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	if err := env.engine.DestroySession(ctx, token); err != nil {
		t.Fatalf("second DestroySession: %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, token, browserSignals()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if got := len(env.sink.byAction(auditSessionDestroy)); got != 1 {
		t.Fatalf("destroy events = %d, want 1", got)
	}
}

func TestSession_InvalidateAllForAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addAccount(t, "u1", "alice", "user")
	env.addAccount(t, "u2", "bob", "user")
	ctx := context.Background()

	tokens := []string{env.login(t, "alice"), env.login(t, "alice"), env.login(t, "alice")}
	other := env.login(t, "bob")

	n, err := env.engine.InvalidateAllForAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("InvalidateAllForAccount: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked = %d, want 3", n)
	}
	for _, tok := range tokens {
		if _, err := env.engine.ValidateSession(ctx, tok, browserSignals()); !errors.Is(err, ErrNoSession) {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
	}
	if _, err := env.engine.ValidateSession(ctx, other, browserSignals()); err != nil {
		t.Fatalf("other account's session revoked: %v", err)
	}
}

func TestSession_SignedEnvelope(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	env := newTestEnv(t, func(c *Config) {
		c.Session.SignedTokens = true
		c.Session.SigningKey = key
	})
	env.addAccount(t, "u1", "alice", "user")
	token := env.login(t, "alice")
	ctx := context.Background()

	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected a JWT envelope, got %q", token)
	}
	if _, err := env.engine.ValidateSession(ctx, token, browserSignals()); err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}

	tampered := token + "A"
	if _, err := env.engine.ValidateSession(ctx, tampered, browserSignals()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for tampered envelope, got %v", err)
	}

	if rep := env.engine.SecurityReport(); !rep.SignedTokens || rep.SigningAlgorithm != "hs256" {
		t.Fatalf("unexpected report %+v", rep)
	}
}
