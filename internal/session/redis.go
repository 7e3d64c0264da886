package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as one Redis hash with a field per
// attribute. Every Save refreshes the hash TTL, so a session expires after
// TTL without writes.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, sessionID, attr string) ([]byte, error) {
	data, err := s.rdb.HGet(ctx, sessionKey(sessionID), attrField(attr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID, attr string, data []byte) error {
	key := sessionKey(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, attrField(attr), data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Remove(ctx context.Context, sessionID, attr string) error {
	return s.rdb.HDel(ctx, sessionKey(sessionID), attrField(attr)).Err()
}

func sessionKey(id string) string  { return "tariff:session:" + id }
func attrField(attr string) string { return "attr:" + attr }
