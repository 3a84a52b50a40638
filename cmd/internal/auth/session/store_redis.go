package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxRedisTxRetries = 100

// RedisStore implements Store on Redis.
//
// Each record is a JSON value under <prefix>session:<hash> whose key expiry
// mirrors ExpiresAt. A per-user set <prefix>user:<id> indexes token hashes
// for DeleteByUser. The client lifecycle is managed by the caller.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace (default "sessiond:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "sessiond:"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) sessionKey(tokenHash string) string { return s.prefix + "session:" + tokenHash }
func (s *RedisStore) userKey(userID string) string       { return s.prefix + "user:" + userID }

// Create stores the record with a key expiry equal to its ExpiresAt.
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode record: %w", err)
	}

	key := s.sessionKey(rec.TokenHash)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, b, 0)
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.TokenHash)
		return nil
	})
	return err
}

// GetByTokenHash loads a record. Keys past their expiry are already gone.
func (s *RedisStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	raw, err := s.rdb.Get(ctx, s.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(raw)
}

// Extend runs an optimistic WATCH/MULTI transaction on the record key.
func (s *RedisStore) Extend(ctx context.Context, tokenHash string, now, expiresAt time.Time) (Record, error) {
	return s.update(ctx, tokenHash, func(rec *Record) error {
		if !rec.ActiveAt(now) {
			return ErrSessionExpired
		}
		rec.ExpiresAt = nextExpiry(rec.ExpiresAt, expiresAt)
		used := now
		rec.LastUsedAt = &used
		return nil
	})
}

// Touch updates last_used_at without changing the expiry.
func (s *RedisStore) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := s.update(ctx, tokenHash, func(rec *Record) error {
		used := now
		rec.LastUsedAt = &used
		return nil
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// Delete removes the record and its user index entry.
func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	rec, err := s.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(tokenHash))
		pipe.SRem(ctx, s.userKey(rec.UserID), tokenHash)
		return nil
	})
	return err
}

// DeleteByUser removes every indexed record of a user.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	uk := s.userKey(userID)
	hashes, err := s.rdb.SMembers(ctx, uk).Result()
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, s.sessionKey(h))
	}

	var del *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			del = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, uk)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if del == nil {
		return 0, nil
	}
	return int(del.Val()), nil
}

// DeleteExpired relies on native key expiry for records, so it always reports
// zero removed records. It still prunes user index entries whose record key is gone.
func (s *RedisStore) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	_, err := s.pruneUserIndex(ctx)
	return 0, err
}

// pruneUserIndex drops user index entries whose record key has expired and
// returns how many it dropped.
func (s *RedisStore) pruneUserIndex(ctx context.Context) (int, error) {
	pruned := 0
	iter := s.rdb.Scan(ctx, 0, s.prefix+"user:*", 100).Iterator()
	for iter.Next(ctx) {
		uk := iter.Val()
		hashes, err := s.rdb.SMembers(ctx, uk).Result()
		if err != nil {
			return pruned, err
		}
		for _, h := range hashes {
			n, err := s.rdb.Exists(ctx, s.sessionKey(h)).Result()
			if err != nil {
				return pruned, err
			}
			if n == 0 {
				if err := s.rdb.SRem(ctx, uk, h).Err(); err != nil {
					return pruned, err
				}
				pruned++
			}
		}
	}
	return pruned, iter.Err()
}

// Ping checks Redis reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) update(ctx context.Context, tokenHash string, fn func(*Record) error) (Record, error) {
	key := s.sessionKey(tokenHash)

	var out Record
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("session: encode record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.PExpireAt(ctx, key, rec.ExpiresAt)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for range maxRedisTxRetries {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return out, nil
	}
	return Record{}, fmt.Errorf("session: redis update: %w", redis.TxFailedErr)
}

func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("session: decode record: %w", err)
	}
	return rec, nil
}
