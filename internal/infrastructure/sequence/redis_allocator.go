package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
)

// RedisAllocator implements port.SequenceAllocator with INCR, which is atomic server-side
type RedisAllocator struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisAllocator creates an allocator storing counters under prefix
func NewRedisAllocator(client *redis.Client, prefix string, logger *zap.Logger) *RedisAllocator {
	if prefix == "" {
		prefix = "seq"
	}
	return &RedisAllocator{client: client, prefix: prefix, logger: logger}
}

// Key returns the redis key of a counter
func (a *RedisAllocator) Key(key port.SequenceKey) string {
	return fmt.Sprintf("%s:%s:%d:%s", a.prefix, key.DocType, key.Exercice, key.Scope)
}

// Next increments and returns the counter of key
func (a *RedisAllocator) Next(ctx context.Context, key port.SequenceKey) (int64, error) {
	n, err := a.client.Incr(ctx, a.Key(key)).Result()
	if err != nil {
		a.logger.Error("Failed to allocate sequence number",
			zap.String("key", a.Key(key)),
			zap.Error(err))
		return 0, fmt.Errorf("failed to allocate sequence number: %w", err)
	}
	return n, nil
}

// Seed raises the counter to at least value, so that numbers already issued
// by another backend are never handed out again.
func (a *RedisAllocator) Seed(ctx context.Context, key port.SequenceKey, value int64) error {
	k := a.Key(key)
	err := a.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current >= value {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, value, 0)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return fmt.Errorf("failed to seed sequence %s: %w", k, err)
	}
	return nil
}

// Verify interface compliance
var _ port.SequenceAllocator = (*RedisAllocator)(nil)
