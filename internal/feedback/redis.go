package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/circuitbreaker"
)

const (
	DefaultRedisKey     = "answerview:feedback"
	DefaultRedisChannel = "answerview:feedback:changes"
)

// RedisOptions names the hash and pub/sub channel backing a RedisTable.
type RedisOptions struct {
	Key     string
	Channel string
}

// wireChange is the pub/sub payload exchanged between answerd processes.
type wireChange struct {
	MessageID string   `json:"message_id"`
	Category  Category `json:"category"`
	Instance  string   `json:"instance"`
}

// RedisTable stores entries in a Redis hash and fans changes out to every
// process sharing it. Local subscribers are notified synchronously on Set;
// changes from other processes arrive through Relay.
type RedisTable struct {
	rw       *circuitbreaker.RedisWrapper
	key      string
	channel  string
	instance string
	logger   *zap.Logger
	*hub
}

// NewRedisTable creates a table over rw. Call Relay to receive remote changes.
func NewRedisTable(rw *circuitbreaker.RedisWrapper, opts RedisOptions, logger *zap.Logger) *RedisTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Key == "" {
		opts.Key = DefaultRedisKey
	}
	if opts.Channel == "" {
		opts.Channel = DefaultRedisChannel
	}
	return &RedisTable{
		rw:       rw,
		key:      opts.Key,
		channel:  opts.Channel,
		instance: uuid.NewString(),
		logger:   logger,
		hub:      newHub(),
	}
}

func (t *RedisTable) Get(ctx context.Context, messageID string) (Category, bool, error) {
	val, err := t.rw.HGet(ctx, t.key, messageID)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("feedback table get %s: %w", messageID, err)
	}
	c := Category(val)
	if !c.Valid() {
		t.logger.Warn("Ignoring unknown category in feedback table",
			zap.String("message_id", messageID), zap.String("value", val))
		return "", false, nil
	}
	return c, true, nil
}

func (t *RedisTable) Set(ctx context.Context, messageID string, c Category) error {
	if !c.Valid() {
		return ErrUnknownCategory
	}
	msg, err := json.Marshal(wireChange{MessageID: messageID, Category: c, Instance: t.instance})
	if err != nil {
		return err
	}
	if err := t.rw.HSetAndPublish(ctx, t.key, messageID, string(c), t.channel, string(msg)); err != nil {
		return fmt.Errorf("feedback table set %s: %w", messageID, err)
	}
	t.publish(Change{MessageID: messageID, Category: c, Origin: OriginLocal})
	return nil
}

func (t *RedisTable) Subscribe(messageID string, buffer int) chan Change {
	return t.subscribe(messageID, buffer)
}

func (t *RedisTable) Unsubscribe(messageID string, ch chan Change) {
	t.unsubscribe(messageID, ch)
}

// Ping checks the backing Redis.
func (t *RedisTable) Ping(ctx context.Context) error {
	return t.rw.Ping(ctx)
}

// Relay forwards changes published by other processes to local subscribers
// until ctx is done. After a failed or lost subscription it waits minDelay,
// doubling up to maxDelay, and subscribes again. A subscription that came up
// resets the delay.
func (t *RedisTable) Relay(ctx context.Context, minDelay, maxDelay time.Duration) {
	t.relayLoop(ctx, minDelay, maxDelay, nil)
}

func (t *RedisTable) relayLoop(ctx context.Context, minDelay, maxDelay time.Duration, onReady func()) {
	if minDelay <= 0 {
		minDelay = 100 * time.Millisecond
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	delay := minDelay
	for attempt := 1; ; attempt++ {
		subscribed := false
		err := t.run(ctx, func() {
			subscribed = true
			if onReady != nil {
				onReady()
			}
		})
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			attempt, delay = 1, minDelay
		}
		t.logger.Warn("Feedback relay lost, resubscribing",
			zap.Int("attempt", attempt),
			zap.String("channel", t.channel),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

// run holds one subscription. It returns once the subscription is lost or
// ctx ends.
func (t *RedisTable) run(ctx context.Context, onReady func()) error {
	sub := t.rw.Subscribe(ctx, t.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", t.channel, err)
	}
	if onReady != nil {
		onReady()
	}
	t.logger.Info("Feedback table subscribed", zap.String("channel", t.channel), zap.String("instance", t.instance))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("feedback subscription closed")
			}
			t.relay(msg.Payload)
		}
	}
}

func (t *RedisTable) relay(payload string) {
	var wc wireChange
	if err := json.Unmarshal([]byte(payload), &wc); err != nil {
		t.logger.Warn("Dropping malformed feedback change", zap.Error(err))
		return
	}
	if wc.Instance == t.instance || wc.MessageID == "" || !wc.Category.Valid() {
		return
	}
	t.publish(Change{MessageID: wc.MessageID, Category: wc.Category, Origin: OriginRemote})
}
