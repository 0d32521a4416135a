package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type subscription[T any] struct {
	id      string
	handler Handler[T]
	active  atomic.Bool
	cancel  func()
	once    sync.Once
}

func (s *subscription[T]) ID() string     { return s.id }
func (s *subscription[T]) IsActive() bool { return s.active.Load() }
func (s *subscription[T]) Cancel() {
	s.once.Do(func() {
		s.active.Store(false)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Stream is an ordered, synchronous multicast of values of type T.
//
// Publish hands the value to every active subscriber in subscription order
// before it returns. A value published from inside a handler, or while
// another goroutine is delivering, is queued and delivered by the goroutine
// already delivering once the current value has reached every subscriber.
// All subscribers therefore observe the same order.
type Stream[T any] struct {
	mu          sync.Mutex
	subscribers []*subscription[T]
	pending     []T
	delivering  bool

	published atomic.Uint64
	delivered atomic.Uint64
}

func NewStream[T any]() *Stream[T] {
	return &Stream[T]{}
}

// Subscribe appends handler to the subscriber list. Values already being
// delivered are not replayed to it.
func (s *Stream[T]) Subscribe(handler Handler[T]) Subscription {
	sub := &subscription[T]{id: uuid.NewString(), handler: handler}
	sub.active.Store(true)
	sub.cancel = func() { s.remove(sub) }

	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()
	return sub
}

func (s *Stream[T]) remove(target *subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == target {
			next := make([]*subscription[T], 0, len(s.subscribers)-1)
			next = append(next, s.subscribers[:i]...)
			s.subscribers = append(next, s.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers v to all active subscribers.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	defer func() {
		// a panicking handler must not wedge the stream
		s.mu.Lock()
		s.delivering = false
		s.pending = nil
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		// subscribers is copy-on-write, so the slice header is a stable snapshot
		subs := s.subscribers
		s.mu.Unlock()

		s.deliver(next, subs)
	}
}

func (s *Stream[T]) deliver(v T, subs []*subscription[T]) {
	s.published.Add(1)
	n := 0
	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		sub.handler(v)
		n++
	}
	s.delivered.Add(uint64(n))
}

// Len returns the number of active subscribers.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Metrics reports how many values were published and handed to subscribers.
func (s *Stream[T]) Metrics() Metrics {
	return Metrics{
		Published:   s.published.Load(),
		Delivered:   s.delivered.Load(),
		Subscribers: s.Len(),
	}
}
