// ABOUTME: Bounded in-memory broadcast channel with per-subscriber cursors
// ABOUTME: Publish never blocks; lagging subscribers skip to the oldest retained event

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the history size used when a non-positive capacity is given.
const DefaultCapacity = 128

// ErrClosed is returned by Recv once the bus is closed and the subscriber
// has consumed every event published before the close.
var ErrClosed = errors.New("bus closed")

// LaggedError reports that a subscriber fell behind the retained history and
// Skipped events were dropped for it. The next Recv continues from the oldest
// retained event.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged, skipped %d events", e.Skipped)
}

// Bus is a multi-producer, multi-consumer broadcast channel. Every subscriber
// sees every event published after it subscribed, in publish order, unless it
// falls more than the bus capacity behind (drop-oldest).
type Bus[T any] struct {
	mu     sync.RWMutex
	buf    []T
	tail   uint64 // sequence number of the next publish
	notify chan struct{}
	closed bool

	subscribers atomic.Int64
}

// New creates a bus that retains the last capacity events.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Publish appends v to the history and wakes waiting subscribers.
// It returns the sequence number assigned to v. Publishing on a closed bus
// is a no-op that returns the current tail.
func (b *Bus[T]) Publish(v T) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return b.tail
	}

	seq := b.tail
	b.buf[seq%uint64(len(b.buf))] = v
	b.tail++

	close(b.notify)
	b.notify = make(chan struct{})
	return seq
}

// Subscribe returns a subscription whose cursor starts at the current tail.
// Earlier events are not replayed.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.RLock()
	next := b.tail
	b.mu.RUnlock()

	b.subscribers.Add(1)
	return &Subscription[T]{bus: b, next: next}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus[T]) Subscribers() int {
	return int(b.subscribers.Load())
}

// Len returns the number of events currently retained.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int(min(b.tail, uint64(len(b.buf))))
}

// Close marks the bus closed and wakes all subscribers. Safe to call multiple times.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Subscription is one reader's cursor into a Bus. A Subscription must not be
// used from multiple goroutines at once.
type Subscription[T any] struct {
	bus    *Bus[T]
	next   uint64
	closed atomic.Bool
}

// Recv returns the next event. It blocks until an event is available, the
// context is done, or the bus is closed. A *LaggedError is returned once when
// events were dropped for this subscriber.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	b := s.bus

	for {
		b.mu.RLock()
		if s.next < b.tail {
			capacity := uint64(len(b.buf))
			var oldest uint64
			if b.tail > capacity {
				oldest = b.tail - capacity
			}
			if s.next < oldest {
				skipped := oldest - s.next
				s.next = oldest
				b.mu.RUnlock()
				return zero, &LaggedError{Skipped: skipped}
			}
			v := b.buf[s.next%capacity]
			s.next++
			b.mu.RUnlock()
			return v, nil
		}
		if b.closed {
			b.mu.RUnlock()
			return zero, ErrClosed
		}
		wait := b.notify
		b.mu.RUnlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close releases the subscription. It does not affect the bus or other subscribers.
func (s *Subscription[T]) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.bus.subscribers.Add(-1)
	}
}
