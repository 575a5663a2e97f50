package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 8

// deleteSessionScript removes the session key and its account index entry in
// one round trip.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisStore is a Redis-backed Store usable from many processes.
//
// Key layout: <prefix>s:<id> holds the encoded record with a TTL equal to
// the remaining idle window; <prefix>a:<accountID> is a set of the account's
// session IDs.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "gt:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gt:"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "s:" + id
}

func (s *RedisStore) accountKey(accountID string) string {
	return s.prefix + "a:" + accountID
}

func (s *RedisStore) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	key := s.key(id)
	var (
		result *Session
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		sess, err := Decode(data)
		if err != nil {
			return err
		}
		sess.ID = id

		out, err := fn(sess)
		result, fnErr = sess, err

		switch out.Op {
		case OpSave:
			encoded, encErr := Encode(sess)
			if encErr != nil {
				return encErr
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, out.TTL)
				return nil
			})
		case OpDelete:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.accountKey(sess.AccountID), id)
				return nil
			})
		default:
			err = nil
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: update contention on session", ErrUnavailable)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if errors.Is(err, ErrCorrupt) {
			if delErr := s.redis.Del(ctx, s.key(id)).Err(); delErr != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, delErr)
			}
			return nil
		}
		return err
	}
	if _, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(id), s.accountKey(sess.AccountID)}, id).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteAllForAccount is not fully atomic: a session created between the
// SMEMBERS read and the DEL is missed. Callers that change credentials do so
// before revoking, so a session created in that window already used the new
// credentials.
func (s *RedisStore) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	accountKey := s.accountKey(accountID)
	ids, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			delCmd = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, accountKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if delCmd == nil {
		return 0, nil
	}
	return int(delCmd.Val()), nil
}

// ActiveSessionIDs returns the indexed session IDs of an account. Entries
// whose record already expired may still be listed.
func (s *RedisStore) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
