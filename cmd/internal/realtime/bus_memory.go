package realtime

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus is a single-process Bus for dev and tests. It delivers to
// subscribers on the same instance only.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySub]struct{}
	closed bool
}

// NewMemoryBus constructs an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan []byte
	once  sync.Once
}

func (s *memorySub) C() <-chan []byte { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		if subs, ok := s.bus.topics[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.topics, s.topic)
			}
		}
		close(s.ch)
	})
	return nil
}

// Publish delivers payload to every current subscriber of topic. Full
// subscriber buffers drop the payload rather than block the publisher.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New("realtime: bus closed")
	}
	for s := range b.topics[topic] {
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber for topic.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("realtime: bus closed")
	}

	s := &memorySub{
		bus:   b,
		topic: topic,
		ch:    make(chan []byte, subscriptionBuffer),
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*memorySub]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	return s, nil
}

// Close shuts the bus down and closes every live subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.topics {
		for s := range subs {
			s.once.Do(func() { close(s.ch) })
		}
	}
	b.topics = make(map[string]map[*memorySub]struct{})
	return nil
}
