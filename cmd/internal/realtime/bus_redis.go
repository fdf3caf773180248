package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus backed by Redis Pub/Sub, so every server instance sees
// every published message event regardless of which instance accepted the
// sender's connection.
//
// Ownership model:
// - RedisBus does NOT own the redis client. The caller must close it.
type RedisBus struct {
	log *slog.Logger
	rdb *redis.Client
}

// NewRedisBus constructs a Redis-backed bus.
func NewRedisBus(log *slog.Logger, rdb *redis.Client) (*RedisBus, error) {
	if log == nil {
		return nil, errors.New("realtime: nil logger")
	}
	if rdb == nil {
		return nil, errors.New("realtime: nil redis client")
	}
	return &RedisBus{log: log, rdb: rdb}, nil
}

// Publish sends payload to every subscriber of topic across instances.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.rdb.Publish(ctx, topic, payload).Err()
}

// Subscribe opens a Redis subscription for topic. The returned subscription
// is confirmed before this returns, so payloads published afterwards are
// delivered.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topic)

	// Wait for the subscription confirmation so the caller never misses
	// events published after Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &redisSub{
		ps:  ps,
		out: make(chan []byte, subscriptionBuffer),
	}

	go func() {
		defer close(s.out)

		for msg := range ps.Channel() {
			select {
			case s.out <- []byte(msg.Payload):
			default:
				b.log.Warn("bus.subscriber.slow", "topic", topic, "dropped_bytes", len(msg.Payload))
			}
		}
	}()

	return s, nil
}

// Close is a no-op for the shared client; per-topic subscriptions own their
// own lifecycle.
func (b *RedisBus) Close() error { return nil }

type redisSub struct {
	ps   *redis.PubSub
	out  chan []byte
	once sync.Once
	err  error
}

func (s *redisSub) C() <-chan []byte { return s.out }

func (s *redisSub) Close() error {
	s.once.Do(func() {
		// Closing the PubSub closes ps.Channel(), which ends the pump
		// goroutine and closes s.out.
		s.err = s.ps.Close()
	})
	return s.err
}
