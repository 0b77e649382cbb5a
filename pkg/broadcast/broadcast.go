package broadcast

import (
	"context"
	"sync"
)

// Message wraps one event of type T.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster. Implementations must be
// safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the subscriber
	// is closed or its subscription context ends.
	Receive(ctx context.Context) <-chan Message[T]

	// Close releases the subscriber. Idempotent.
	Close() error
}

// Broadcaster fans change events out to subscribers. Slow subscribers lose
// messages; Broadcast never blocks the publisher.
type Broadcaster[T any] interface {
	Subscribe(ctx context.Context) Subscriber[T]
	Broadcast(ctx context.Context, msg Message[T]) error
	Close() error
}

// Publish sends data on b. A nil broadcaster is allowed and ignored, so
// components can take an optional broadcaster without nil checks.
func Publish[T any](ctx context.Context, b Broadcaster[T], data T) {
	if b == nil {
		return
	}
	_ = b.Broadcast(ctx, Message[T]{Data: data})
}

// Consume calls fn for every message until the subscriber's channel closes or
// ctx is done. It closes sub before returning.
func Consume[T any](ctx context.Context, sub Subscriber[T], fn func(T)) {
	defer sub.Close()

	ch := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fn(msg.Data)
		}
	}
}

type subscriber[T any] struct {
	ch     chan Message[T]
	closed bool
	mu     sync.RWMutex
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan Message[T], bufferSize)}
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
