package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/store"
)

func TestAccountsLockoutIsExactUnderConcurrency(t *testing.T) {
	s := NewAccounts()
	s.Put(store.Account{ID: "a1", Handle: "Alice"})
	policy := lockout.Policy{Threshold: 1000, Duration: time.Minute}
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordLoginFailure(context.Background(), "a1", policy, now); err != nil {
				t.Errorf("RecordLoginFailure: %v", err)
			}
		}()
	}
	wg.Wait()

	a, err := s.GetAccountByHandle(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetAccountByHandle: %v", err)
	}
	if a.FailedAttempts != 100 {
		t.Fatalf("expected 100 failures, got %d", a.FailedAttempts)
	}
}

func TestAccountsSuccessRefusedWhileLocked(t *testing.T) {
	s := NewAccounts()
	s.Put(store.Account{ID: "a1", Handle: "bob"})
	policy := lockout.Default()
	now := time.Now()

	for i := 0; i < policy.Threshold; i++ {
		if _, err := s.RecordLoginFailure(context.Background(), "a1", policy, now); err != nil {
			t.Fatalf("RecordLoginFailure: %v", err)
		}
	}
	if err := s.RecordLoginSuccess(context.Background(), "a1", policy, now, ""); !errors.Is(err, store.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	later := now.Add(policy.Duration + time.Second)
	if err := s.RecordLoginSuccess(context.Background(), "a1", policy, later, "$argon2id$new"); err != nil {
		t.Fatalf("RecordLoginSuccess after expiry: %v", err)
	}
	a, _ := s.GetAccountByID(context.Background(), "a1")
	if a.FailedAttempts != 0 || !a.LockedUntil.IsZero() || a.PasswordHash != "$argon2id$new" || !a.LastLogin.Equal(later) {
		t.Fatalf("unexpected account after success: %+v", a)
	}
}

func TestAccountsUnlock(t *testing.T) {
	s := NewAccounts()
	s.Put(store.Account{ID: "a1", Handle: "c", FailedAttempts: 5, LockedUntil: time.Now().Add(time.Hour)})
	if err := s.Unlock(context.Background(), "a1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	a, _ := s.GetAccountByID(context.Background(), "a1")
	if a.FailedAttempts != 0 || !a.LockedUntil.IsZero() {
		t.Fatalf("expected cleared lock, got %+v", a)
	}
	if err := s.Unlock(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTemplatesFailureThresholdUnverifies(t *testing.T) {
	s := NewTemplates()
	ctx := context.Background()
	if err := s.CreateTemplate(ctx, store.Template{ID: "t1", AccountID: "bob", IsVerified: true, EnrolledAt: time.Now()}); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	var last store.Template
	for i := 0; i < 5; i++ {
		var err error
		last, err = s.RecordMatchFailure(ctx, "t1", time.Now(), 5)
		if err != nil {
			t.Fatalf("RecordMatchFailure: %v", err)
		}
	}
	if last.FailedMatches != 5 || last.IsVerified {
		t.Fatalf("expected locked template, got %+v", last)
	}

	verified, err := s.ListVerifiedTemplates(ctx, "bob")
	if err != nil {
		t.Fatalf("ListVerifiedTemplates: %v", err)
	}
	if len(verified) != 0 {
		t.Fatalf("expected no verified templates, got %d", len(verified))
	}
	all, _ := s.ListTemplates(ctx, "bob")
	if len(all) != 1 {
		t.Fatalf("locked template must not be deleted, got %d", len(all))
	}
}

func TestTemplatesSuccessResetsFailures(t *testing.T) {
	s := NewTemplates()
	ctx := context.Background()
	_ = s.CreateTemplate(ctx, store.Template{ID: "t1", AccountID: "x", IsVerified: true})
	_, _ = s.RecordMatchFailure(ctx, "t1", time.Now(), 5)

	got, err := s.RecordMatchSuccess(ctx, "t1", time.Now())
	if err != nil {
		t.Fatalf("RecordMatchSuccess: %v", err)
	}
	if got.SuccessfulMatches != 1 || got.FailedMatches != 0 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if err := s.CreateTemplate(ctx, store.Template{ID: "t1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTemplatesGuardedWritesRespectLock(t *testing.T) {
	s := NewTemplates()
	ctx := context.Background()
	_ = s.CreateTemplate(ctx, store.Template{ID: "p1", AccountID: "x"})
	_ = s.CreateTemplate(ctx, store.Template{ID: "v1", AccountID: "x", IsVerified: true})

	for i := 0; i < 5; i++ {
		_, _ = s.RecordMatchFailure(ctx, "p1", time.Now(), 5)
		_, _ = s.RecordMatchFailure(ctx, "v1", time.Now(), 5)
	}

	if _, err := s.MarkTemplateVerified(ctx, "p1", 5); !errors.Is(err, store.ErrTemplateState) {
		t.Fatalf("MarkTemplateVerified on a locked template: %v", err)
	}
	if _, err := s.RecordMatchSuccess(ctx, "v1", time.Now()); !errors.Is(err, store.ErrTemplateState) {
		t.Fatalf("RecordMatchSuccess on a locked template: %v", err)
	}
	for _, id := range []string{"p1", "v1"} {
		got, _ := s.GetTemplate(ctx, id)
		if got.IsVerified || got.FailedMatches != 5 {
			t.Fatalf("%s changed by a refused write: %+v", id, got)
		}
	}

	_ = s.CreateTemplate(ctx, store.Template{ID: "p2", AccountID: "x"})
	got, err := s.MarkTemplateVerified(ctx, "p2", 5)
	if err != nil || !got.IsVerified {
		t.Fatalf("MarkTemplateVerified: %+v, %v", got, err)
	}
	if _, err := s.MarkTemplateVerified(ctx, "p2", 5); !errors.Is(err, store.ErrTemplateState) {
		t.Fatalf("second MarkTemplateVerified: %v", err)
	}
}
