package goTrust

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goTrust/biometric"
	"github.com/MrEthical07/goTrust/internal/logging"
	"github.com/MrEthical07/goTrust/store"
	"github.com/MrEthical07/goTrust/store/memory"
)

const (
	testVectorSize = 4
	alicePassword  = "correct horse battery"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSink keeps every event for inspection. Events whose action is
// failOn are refused instead.
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
	failOn string
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && ev.Action == s.failOn {
		return errors.New("audit sink unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) byAction(action string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	engine    *Engine
	accounts  *memory.Accounts
	templates *memory.Templates
	previews  *memory.Previews
	sink      *recordingSink
	clock     *testClock
	logs      *bytes.Buffer
}

func testBiometricKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, biometric.KeySize))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Biometric.Enabled = true
	cfg.Biometric.Key = testBiometricKey()
	cfg.Biometric.VectorSize = testVectorSize
	cfg.Throttle.Backend = "off"
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWithExtractor(t, mutate, biometric.VectorExtractor{})
}

func newTestEnvWithExtractor(t *testing.T, mutate func(*Config), extractor biometric.FeatureExtractor) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		accounts:  memory.NewAccounts(),
		templates: memory.NewTemplates(),
		previews:  memory.NewPreviews(),
		sink:      &recordingSink{},
		clock:     newTestClock(),
		logs:      &bytes.Buffer{},
	}

	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(env.accounts).
		WithTemplateStore(env.templates).
		WithPreviewStore(env.previews).
		WithFeatureExtractor(extractor).
		WithAuditSink(env.sink).
		WithLogger(logging.NewWithWriter(logging.Config{Level: "debug", Format: "json"}, env.logs)).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// addAccount stores an account whose password is alicePassword.
func (env *testEnv) addAccount(t *testing.T, id, handle, role string) store.Account {
	t.Helper()
	hash, err := env.engine.hasher.Hash(alicePassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := store.Account{ID: id, Handle: handle, PasswordHash: hash, Role: role}
	env.accounts.Put(a)
	return a
}

func (env *testEnv) account(t *testing.T, id string) store.Account {
	t.Helper()
	a, err := env.accounts.GetAccountByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccountByID(%s): %v", id, err)
	}
	return a
}

// login authenticates handle and opens a session with the default signals.
func (env *testEnv) login(t *testing.T, handle string) string {
	t.Helper()
	ctx := context.Background()
	acct, err := env.engine.Authenticate(ctx, handle, alicePassword)
	if err != nil {
		t.Fatalf("Authenticate(%s): %v", handle, err)
	}
	token, err := env.engine.CreateSession(ctx, acct, browserSignals())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return token
}

func browserSignals() Signals {
	return Signals{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) Firefox/140.0",
		AcceptLanguage: "en-GB,en;q=0.8",
		Platform:       "Linux",
		DeviceID:       "dev-1",
		RemoteIP:       "203.0.113.7",
	}
}

// sample encodes v for biometric.VectorExtractor.
func sample(t *testing.T, v ...float64) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal sample: %v", err)
	}
	return b
}

// enrollVerified enrolls v for accountID and confirms it.
func (env *testEnv) enrollVerified(t *testing.T, accountID string, v ...float64) *BiometricTemplate {
	t.Helper()
	ctx := context.Background()
	tpl, err := env.engine.EnrollBiometric(ctx, accountID, sample(t, v...), "primary")
	if err != nil {
		t.Fatalf("EnrollBiometric: %v", err)
	}
	if err := env.engine.ConfirmBiometric(ctx, accountID, tpl.ID, sample(t, v...)); err != nil {
		t.Fatalf("ConfirmBiometric: %v", err)
	}
	return tpl
}
