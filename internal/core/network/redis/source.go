// Package redis implements a sync source backed by a Redis stream. Each
// stream entry carries one JSON encoded NetworkEvent under the "event" field,
// and the cursor is the id of the last consumed entry.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zeusync/recsync/internal/core/network"
)

const eventField = "event"

var _ network.Source = (*Source)(nil)

type Source struct {
	client goredis.Cmdable
	stream string
	cursor string
	closer func() error
}

// New reads stream through client. The caller keeps ownership of client.
func New(client goredis.Cmdable, stream string) *Source {
	return &Source{client: client, stream: stream}
}

// Factory connects with opts when the producer starts and closes the
// client together with the source.
func Factory(opts *goredis.Options, stream string) network.SourceFactory {
	return func(ctx context.Context) (network.Source, error) {
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
		}
		src := New(client, stream)
		src.closer = client.Close
		return src, nil
	}
}

// Seek makes the next pull start after the entry with the given id.
func (s *Source) Seek(_ context.Context, cursor string) error {
	s.cursor = cursor
	return nil
}

func (s *Source) Cursor() string { return s.cursor }

func (s *Source) Next(ctx context.Context, limit int) ([]network.NetworkEvent, error) {
	start, count := "-", int64(limit)
	if s.cursor != "" {
		// XRANGE is inclusive; fetch one extra and skip the cursor entry
		start, count = s.cursor, count+1
	}
	msgs, err := s.client.XRangeN(ctx, s.stream, start, "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.stream, err)
	}

	events := make([]network.NetworkEvent, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == s.cursor {
			continue
		}
		if len(events) == limit {
			break
		}
		raw, ok := msg.Values[eventField].(string)
		if !ok {
			return events, fmt.Errorf("%w: entry %s has no %q field", network.ErrInvalidFrame, msg.ID, eventField)
		}
		ev, err := network.DecodeEvent([]byte(raw))
		if err != nil {
			return events, fmt.Errorf("entry %s: %w", msg.ID, err)
		}
		events = append(events, ev)
		s.cursor = msg.ID
	}
	return events, nil
}

func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// Publish appends ev to stream and returns the entry id.
func Publish(ctx context.Context, client goredis.Cmdable, stream string, ev network.NetworkEvent) (string, error) {
	data, err := network.EncodeEvent(ev)
	if err != nil {
		return "", err
	}
	return client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{eventField: string(data)},
	}).Result()
}
