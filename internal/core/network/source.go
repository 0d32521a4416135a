package network

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Source is where the producer pulls events from. A Source is only used by
// the producer goroutine that created it.
//
// Next returns at most limit events; an empty result means nothing is
// available yet. io.EOF signals that the source is exhausted for good.
type Source interface {
	Seek(ctx context.Context, cursor string) error
	Next(ctx context.Context, limit int) ([]NetworkEvent, error)
	Close() error
}

// SourceFactory builds a Source inside the producer goroutine.
type SourceFactory func(ctx context.Context) (Source, error)

// SliceSource replays a fixed list of events. Its cursor is the offset of
// the next event to emit.
type SliceSource struct {
	events []NetworkEvent
	offset int
}

func NewSliceSource(events []NetworkEvent) *SliceSource {
	return &SliceSource{events: events}
}

// SliceFactory returns a factory producing a fresh SliceSource over events.
func SliceFactory(events []NetworkEvent) SourceFactory {
	return func(context.Context) (Source, error) {
		return NewSliceSource(events), nil
	}
}

func (s *SliceSource) Seek(_ context.Context, cursor string) error {
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return fmt.Errorf("invalid offset cursor %q", cursor)
	}
	if offset > len(s.events) {
		offset = len(s.events)
	}
	s.offset = offset
	return nil
}

func (s *SliceSource) Next(_ context.Context, limit int) ([]NetworkEvent, error) {
	if s.offset >= len(s.events) {
		return nil, io.EOF
	}
	end := s.offset + limit
	if end > len(s.events) {
		end = len(s.events)
	}
	batch := append([]NetworkEvent(nil), s.events[s.offset:end]...)
	s.offset = end
	return batch, nil
}

func (s *SliceSource) Close() error { return nil }

// relayBuffer collects events pushed by a relay connection until the producer
// pulls them. Frames that belong to a superseded subscription are dropped.
type relayBuffer struct {
	mu           sync.Mutex
	subscription uint64
	events       []NetworkEvent
	err          error
}

// Subscribe starts a new subscription, discarding buffered events, and
// returns its id.
func (b *relayBuffer) Subscribe() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscription++
	b.events = nil
	return b.subscription
}

// Push appends the events of f if it belongs to the current subscription.
func (b *relayBuffer) Push(f Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.Subscription != b.subscription {
		return false
	}
	b.events = append(b.events, f.Events...)
	return true
}

// Fail records a terminal connection error. Buffered events are still
// drained before the error is reported.
func (b *relayBuffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

// Drain removes up to limit buffered events.
func (b *relayBuffer) Drain(limit int) ([]NetworkEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		if b.err != nil {
			return nil, b.err
		}
		return nil, nil
	}
	n := limit
	if n > len(b.events) {
		n = len(b.events)
	}
	batch := append([]NetworkEvent(nil), b.events[:n]...)
	b.events = b.events[n:]
	return batch, nil
}
