package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "t:"), mr, rdb
}

// storeContract runs the behavior every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	sess := testSession(now)
	if err := s.Create(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Update(ctx, sess.ID, func(cur *Session) (Outcome, error) {
		cur.LastActivity = now.Add(time.Minute)
		return Outcome{Op: OpSave, TTL: time.Hour}, nil
	})
	if err != nil {
		t.Fatalf("Update save: %v", err)
	}
	if !got.LastActivity.Equal(now.Add(time.Minute)) {
		t.Fatalf("Update did not return modified session: %+v", got)
	}
	reread, err := s.Get(ctx, sess.ID)
	if err != nil || !reread.LastActivity.Equal(now.Add(time.Minute)) {
		t.Fatalf("Update was not persisted: %+v err=%v", reread, err)
	}

	// Leave must not persist modifications.
	_, _ = s.Update(ctx, sess.ID, func(cur *Session) (Outcome, error) {
		cur.Role = "tampered"
		return Outcome{Op: OpLeave}, nil
	})
	if reread, _ := s.Get(ctx, sess.ID); reread.Role != "manager" {
		t.Fatalf("OpLeave persisted a change: %+v", reread)
	}

	// Delete is applied even when the callback reports an error.
	boom := errors.New("hijack")
	if _, err := s.Update(ctx, sess.ID, func(*Session) (Outcome, error) {
		return Outcome{Op: OpDelete}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete outcome, got %v", err)
	}
	if _, err := s.Update(ctx, sess.ID, func(*Session) (Outcome, error) { return Outcome{}, nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update on missing session: %v", err)
	}

	// Invalidate-all.
	for _, id := range []string{"a", "b", "c"} {
		other := testSession(now)
		other.ID = id
		if err := s.Create(ctx, other, time.Hour); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	foreign := testSession(now)
	foreign.ID, foreign.AccountID = "z", "acct-2"
	_ = s.Create(ctx, foreign, time.Hour)

	n, err := s.DeleteAllForAccount(ctx, "acct-1")
	if err != nil || n != 3 {
		t.Fatalf("DeleteAllForAccount = %d, %v; want 3", n, err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session %s survived invalidate-all", id)
		}
	}
	if _, err := s.Get(ctx, "z"); err != nil {
		t.Fatalf("other account's session must survive: %v", err)
	}

	if err := s.Delete(ctx, "z"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "z"); err != nil {
		t.Fatalf("second Delete must be idempotent: %v", err)
	}
}

func TestRedisStoreContract(t *testing.T) {
	s, _, _ := newRedisStoreTest(t)
	storeContract(t, s)
}

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStoreTTLAndIndex(t *testing.T) {
	s, mr, rdb := newRedisStoreTest(t)
	ctx := context.Background()
	sess := testSession(time.Now())

	if err := s.Create(ctx, sess, 30*time.Minute); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ttl := mr.TTL(s.key(sess.ID)); ttl != 30*time.Minute {
		t.Fatalf("expected 30m TTL, got %v", ttl)
	}
	ids, err := s.ActiveSessionIDs(ctx, sess.AccountID)
	if err != nil || len(ids) != 1 || ids[0] != sess.ID {
		t.Fatalf("unexpected index %v err=%v", ids, err)
	}

	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	members, err := rdb.SMembers(ctx, s.accountKey(sess.AccountID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty account index, got %v", members)
	}

	mr.FastForward(time.Hour)
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	s, _, rdb := newRedisStoreTest(t)
	ctx := context.Background()
	if err := rdb.Set(ctx, s.key("bad"), []byte("garbage"), time.Hour).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Get(ctx, "bad"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if err := s.Delete(ctx, "bad"); err != nil {
		t.Fatalf("Delete of corrupt record: %v", err)
	}
	if n, _ := rdb.Exists(ctx, s.key("bad")).Result(); n != 0 {
		t.Fatal("corrupt record should be removed")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t)
	mr.Close()
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMemoryStoreExpiryAndConcurrentUpdates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	s := NewMemoryStore().WithClock(clock)
	ctx := context.Background()

	sess := testSession(now)
	sess.Role = ""
	_ = s.Create(ctx, sess, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, sess.ID, func(cur *Session) (Outcome, error) {
				cur.Role += "x"
				return Outcome{Op: OpSave, TTL: time.Minute}, nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()
	got, _ := s.Get(ctx, sess.ID)
	if len(got.Role) != 50 {
		t.Fatalf("lost updates: role length %d", len(got.Role))
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expired record should be dropped on touch, len=%d", s.Len())
	}
}
