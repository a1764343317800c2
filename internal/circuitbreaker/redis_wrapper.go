package circuitbreaker

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper guards the Redis calls the feedback table makes. A missing
// key (redis.Nil) is a normal answer and never trips the breaker.
type RedisWrapper struct {
	client  *redis.Client
	cb      *CircuitBreaker
	service string
	logger  *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, service string, logger *zap.Logger) *RedisWrapper {
	return NewRedisWrapperWithConfig(client, service, RedisSettings().ToConfig(), logger)
}

// NewRedisWrapperWithConfig is NewRedisWrapper with explicit breaker config
func NewRedisWrapperWithConfig(client *redis.Client, service string, cfg Config, logger *zap.Logger) *RedisWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker("redis", cfg, logger)
	GlobalMetricsCollector.Register("redis", service, cb)
	return &RedisWrapper{client: client, cb: cb, service: service, logger: logger}
}

func (rw *RedisWrapper) run(ctx context.Context, fn func() error) error {
	err := rw.cb.Execute(ctx, func() error {
		if err := fn(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return nil
	})
	GlobalMetricsCollector.RecordRequest("redis", rw.service, rw.cb.State(), err == nil)
	return err
}

// Ping checks connectivity
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	var cmdErr error
	if err := rw.run(ctx, func() error {
		cmdErr = rw.client.Ping(ctx).Err()
		return cmdErr
	}); err != nil {
		return err
	}
	return cmdErr
}

// HGet returns a hash field; redis.Nil when it is absent.
func (rw *RedisWrapper) HGet(ctx context.Context, key, field string) (string, error) {
	var (
		val    string
		cmdErr error
	)
	if err := rw.run(ctx, func() error {
		val, cmdErr = rw.client.HGet(ctx, key, field).Result()
		return cmdErr
	}); err != nil {
		return "", err
	}
	return val, cmdErr
}

// HGetAll returns every field of a hash
func (rw *RedisWrapper) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var val map[string]string
	err := rw.run(ctx, func() error {
		var cmdErr error
		val, cmdErr = rw.client.HGetAll(ctx, key).Result()
		return cmdErr
	})
	return val, err
}

// HSetAndPublish writes a hash field and announces it on channel in one
// MULTI/EXEC round trip.
func (rw *RedisWrapper) HSetAndPublish(ctx context.Context, key, field, value, channel, message string) error {
	return rw.run(ctx, func() error {
		_, err := rw.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, value)
			pipe.Publish(ctx, channel, message)
			return nil
		})
		return err
	})
}

// HDel removes hash fields
func (rw *RedisWrapper) HDel(ctx context.Context, key string, fields ...string) error {
	return rw.run(ctx, func() error {
		return rw.client.HDel(ctx, key, fields...).Err()
	})
}

// Subscribe opens a pub/sub subscription. Subscriptions are long lived and
// bypass the breaker; the first receive surfaces connection errors.
func (rw *RedisWrapper) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return rw.client.Subscribe(ctx, channels...)
}

// Close closes the underlying client
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen reports whether Redis calls are being rejected
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
