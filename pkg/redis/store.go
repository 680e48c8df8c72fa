package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store is a Redis backed store.TTLStore. Set without a TTL also makes it usable as a
// store.DurableStore.
type Store struct {
	client    *Client
	keyPrefix string
}

// NewStore namespaces every key with keyPrefix.
func NewStore(client *Client, keyPrefix string) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.SetWithTTL")
	defer span.End()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.rdb.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		s.client.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("failed to write redis key")
		return err
	}
	return nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Get")
	defer span.End()

	value, err := s.client.rdb.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("failed to read redis key")
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Delete")
	defer span.End()

	return s.client.rdb.Del(ctx, s.keyPrefix+key).Err()
}

// TTL returns the remaining lifetime of key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.rdb.TTL(ctx, s.keyPrefix+key).Result()
}
