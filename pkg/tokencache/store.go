package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storify-asia/storify/pkg/cache"
)

type MemoryStore struct {
	lru *cache.LRU[string, Entry]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lru: cache.NewLRU[string, Entry](64)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	s.lru.Set(key, *e, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Delete(key)
	return nil
}

// RedisStore shares tokens between replicas. Entries are JSON with a Redis
// TTL matching the refresh time.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "storify:token:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, b, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
