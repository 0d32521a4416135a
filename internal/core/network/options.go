package network

import (
	"time"

	"github.com/zeusync/recsync/internal/core/observability/log"
)

const (
	DefaultAckPeriod = 16 * time.Millisecond
	DefaultBatchSize = 512
)

type options struct {
	ackStream <-chan Input
	ackPeriod time.Duration
	initial   Config
	logger    log.Log
}

type Option func(*options)

// WithAckStream replaces the periodic ack with acks (or configs) read from ch.
func WithAckStream(ch <-chan Input) Option {
	return func(o *options) { o.ackStream = ch }
}

// WithAckPeriod sets the period of the default ack ticker. The first ack is
// sent immediately.
func WithAckPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ackPeriod = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.initial.BatchSize = n
		}
	}
}

// WithCursor positions the source before the first pull.
func WithCursor(cursor string) Option {
	return func(o *options) { o.initial.Cursor = cursor }
}

func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

func defaultOptions() options {
	return options{
		ackPeriod: DefaultAckPeriod,
		initial:   Config{BatchSize: DefaultBatchSize},
		logger:    log.Nop(),
	}
}
