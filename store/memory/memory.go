// Package memory implements the store interfaces with mutex-guarded maps.
// Every mutation holds the store mutex for its whole read-modify-write, which
// is what makes lockout and match counters exact within one process.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/store"
)

// Accounts is an in-memory store.AccountStore.
type Accounts struct {
	mu       sync.Mutex
	byID     map[string]*store.Account
	byHandle map[string]string
}

func NewAccounts() *Accounts {
	return &Accounts{
		byID:     make(map[string]*store.Account),
		byHandle: make(map[string]string),
	}
}

// Put inserts or replaces an account. Handles are case-insensitive.
func (s *Accounts) Put(a store.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.byID[a.ID] = &cp
	s.byHandle[normalizeHandle(a.Handle)] = a.ID
}

func (s *Accounts) GetAccountByHandle(ctx context.Context, handle string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHandle[normalizeHandle(handle)]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return *s.byID[id], nil
}

func (s *Accounts) GetAccountByID(ctx context.Context, id string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return *a, nil
}

func (s *Accounts) RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error) {
	if err := ctx.Err(); err != nil {
		return lockout.State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return lockout.State{}, store.ErrNotFound
	}
	next := policy.Fail(a.Lockout(), now)
	a.FailedAttempts, a.LockedUntil = next.FailedAttempts, next.LockedUntil
	return next, nil
}

func (s *Accounts) RecordLoginSuccess(ctx context.Context, id string, policy lockout.Policy, now time.Time, newHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	if locked, _ := policy.Locked(a.Lockout(), now); locked {
		return store.ErrLocked
	}
	a.FailedAttempts = 0
	a.LockedUntil = time.Time{}
	a.LastLogin = now
	if newHash != "" {
		a.PasswordHash = newHash
	}
	return nil
}

func (s *Accounts) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (s *Accounts) Unlock(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = time.Time{}
	return nil
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Templates is an in-memory store.TemplateStore.
type Templates struct {
	mu   sync.Mutex
	byID map[string]*store.Template
}

func NewTemplates() *Templates {
	return &Templates{byID: make(map[string]*store.Template)}
}

func (s *Templates) CreateTemplate(ctx context.Context, t store.Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[t.ID]; exists {
		return store.ErrConflict
	}
	cp := t
	cp.EncryptedVector = append([]byte(nil), t.EncryptedVector...)
	s.byID[t.ID] = &cp
	return nil
}

func (s *Templates) GetTemplate(ctx context.Context, id string) (store.Template, error) {
	if err := ctx.Err(); err != nil {
		return store.Template{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return store.Template{}, store.ErrNotFound
	}
	return clone(t), nil
}

func (s *Templates) ListTemplates(ctx context.Context, accountID string) ([]store.Template, error) {
	return s.list(ctx, accountID, false)
}

func (s *Templates) ListVerifiedTemplates(ctx context.Context, accountID string) ([]store.Template, error) {
	return s.list(ctx, accountID, true)
}

func (s *Templates) list(ctx context.Context, accountID string, verifiedOnly bool) ([]store.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Template
	for _, t := range s.byID {
		if t.AccountID != accountID || (verifiedOnly && !t.IsVerified) {
			continue
		}
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnrolledAt.Before(out[j].EnrolledAt)
	})
	return out, nil
}

func (s *Templates) MarkTemplateVerified(ctx context.Context, id string, threshold int) (store.Template, error) {
	if err := ctx.Err(); err != nil {
		return store.Template{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return store.Template{}, store.ErrNotFound
	}
	if t.IsVerified || (threshold > 0 && t.FailedMatches >= threshold) {
		return store.Template{}, store.ErrTemplateState
	}
	t.IsVerified = true
	t.FailedMatches = 0
	return clone(t), nil
}

func (s *Templates) RecordMatchSuccess(ctx context.Context, id string, now time.Time) (store.Template, error) {
	if err := ctx.Err(); err != nil {
		return store.Template{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return store.Template{}, store.ErrNotFound
	}
	if !t.IsVerified {
		return store.Template{}, store.ErrTemplateState
	}
	t.SuccessfulMatches++
	t.FailedMatches = 0
	t.LastSuccess = now
	return clone(t), nil
}

func (s *Templates) RecordMatchFailure(ctx context.Context, id string, now time.Time, threshold int) (store.Template, error) {
	if err := ctx.Err(); err != nil {
		return store.Template{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return store.Template{}, store.ErrNotFound
	}
	t.FailedMatches++
	t.LastFailure = now
	if threshold > 0 && t.FailedMatches >= threshold {
		t.IsVerified = false
	}
	return clone(t), nil
}

func (s *Templates) DeleteTemplate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func clone(t *store.Template) store.Template {
	cp := *t
	cp.EncryptedVector = append([]byte(nil), t.EncryptedVector...)
	return cp
}
