package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	sess    Session
	expires time.Time
}

// MemoryStore keeps sessions in process memory. A restart invalidates every
// session.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	byAccount map[string]map[string]struct{}
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*memoryEntry),
		byAccount: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// WithClock replaces the clock used for record expiry.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Create(ctx context.Context, s *Session, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = &memoryEntry{sess: *s, expires: m.now().Add(ttl)}
	ids, ok := m.byAccount[s.AccountID]
	if !ok {
		ids = make(map[string]struct{})
		m.byAccount[s.AccountID] = ids
	}
	ids[s.ID] = struct{}{}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.live(id)
	if err != nil {
		return nil, err
	}
	cp := e.sess
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.live(id)
	if err != nil {
		return nil, err
	}

	cp := e.sess
	out, fnErr := fn(&cp)
	switch out.Op {
	case OpSave:
		e.sess = cp
		e.expires = m.now().Add(out.TTL)
	case OpDelete:
		m.remove(id, e.sess.AccountID)
	}
	return &cp, fnErr
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		m.remove(id, e.sess.AccountID)
	}
	return nil
}

func (m *MemoryStore) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for id := range m.byAccount[accountID] {
		if e, ok := m.entries[id]; ok && now.Before(e.expires) {
			n++
		}
		delete(m.entries, id)
	}
	delete(m.byAccount, accountID)
	return n, nil
}

// Len reports the number of stored records, expired ones included until
// they are next touched.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// live must be called with m.mu held.
func (m *MemoryStore) live(id string) (*memoryEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.expires) {
		m.remove(id, e.sess.AccountID)
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) remove(id, accountID string) {
	delete(m.entries, id)
	if ids, ok := m.byAccount[accountID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.byAccount, accountID)
		}
	}
}
