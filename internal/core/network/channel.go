package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/recsync/internal/core/observability/log"
)

// Stats counts producer activity.
type Stats struct {
	Acks    uint64
	Batches uint64
	Events  uint64
}

// SyncChannel moves batches of NetworkEvents from a producer goroutine to a
// consumer. The producer emits at most one non-empty batch per ack it
// receives and never emits after Dispose returns.
type SyncChannel struct {
	opts options

	input    chan Input
	produced chan []NetworkEvent
	out      chan []NetworkEvent
	done     chan struct{}
	stopped  chan struct{}
	cancel   context.CancelFunc

	forwarders  sync.WaitGroup
	disposeOnce sync.Once
	disposed    atomic.Bool

	errMu sync.Mutex
	err   error

	acks    atomic.Uint64
	batches atomic.Uint64
	events  atomic.Uint64
}

// NewSyncChannel starts the producer, the ack forwarder and the output
// forwarder. The source is built by factory on the producer goroutine.
func NewSyncChannel(factory SourceFactory, opts ...Option) *SyncChannel {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SyncChannel{
		opts:     o,
		input:    make(chan Input),
		produced: make(chan []NetworkEvent),
		out:      make(chan []NetworkEvent),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		cancel:   cancel,
	}

	go c.produce(ctx, factory)

	c.forwarders.Add(2)
	go c.forwardOutput()
	if o.ackStream != nil {
		go c.forwardAcks(o.ackStream)
	} else {
		go c.tick(o.ackPeriod)
	}
	return c
}

// Events is closed after Dispose, or when the producer stops because its
// source is exhausted or failed. Check Err in the latter case.
func (c *SyncChannel) Events() <-chan []NetworkEvent { return c.out }

// Send delivers an input to the producer.
func (c *SyncChannel) Send(ctx context.Context, in Input) error {
	if c.disposed.Load() {
		return ErrChannelDisposed
	}
	select {
	case c.input <- in:
		return nil
	case <-c.done:
		return ErrChannelDisposed
	case <-c.stopped:
		return ErrProducerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error that stopped the producer, if any.
func (c *SyncChannel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *SyncChannel) Stats() Stats {
	return Stats{
		Acks:    c.acks.Load(),
		Batches: c.batches.Load(),
		Events:  c.events.Load(),
	}
}

// Dispose stops the producer and both forwarders. It is idempotent and
// returns once nothing more can be emitted.
func (c *SyncChannel) Dispose() {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		close(c.done)
		c.cancel()
		c.forwarders.Wait()
		c.opts.logger.Debug("sync channel disposed", log.Uint64("batches", c.batches.Load()))
	})
}

func (c *SyncChannel) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *SyncChannel) produce(ctx context.Context, factory SourceFactory) {
	logger := c.opts.logger
	defer close(c.stopped)
	defer close(c.produced)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("producer panic: %v", r)
			logger.Error("sync producer crashed", log.Error(err))
			c.fail(err)
		}
	}()

	src, err := factory(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to open sync source", log.Error(err))
			c.fail(fmt.Errorf("open source: %w", err))
		}
		return
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("failed to close sync source", log.Error(err))
		}
	}()

	cfg := c.opts.initial
	if cfg.Cursor != "" {
		if err := src.Seek(ctx, cfg.Cursor); err != nil {
			logger.Error("failed to seek sync source", log.String("cursor", cfg.Cursor), log.Error(err))
			c.fail(fmt.Errorf("seek %q: %w", cfg.Cursor, err))
			return
		}
	}
	logger.Info("sync producer started", log.Int("batch_size", cfg.BatchSize), log.String("cursor", cfg.Cursor))

	for {
		var in Input
		select {
		case <-ctx.Done():
			return
		case in = <-c.input:
		}

		switch msg := in.(type) {
		case Config:
			if msg.BatchSize > 0 {
				cfg.BatchSize = msg.BatchSize
			}
			if msg.Cursor != "" {
				if err := src.Seek(ctx, msg.Cursor); err != nil {
					logger.Error("failed to seek sync source", log.String("cursor", msg.Cursor), log.Error(err))
					c.fail(fmt.Errorf("seek %q: %w", msg.Cursor, err))
					return
				}
				cfg.Cursor = msg.Cursor
			}
			logger.Debug("sync producer reconfigured", log.Int("batch_size", cfg.BatchSize), log.String("cursor", cfg.Cursor))
		case Ack:
			c.acks.Add(1)
			batch, err := src.Next(ctx, cfg.BatchSize)
			if errors.Is(err, io.EOF) && len(batch) == 0 {
				logger.Info("sync source exhausted", log.Uint64("events", c.events.Load()))
				return
			}
			if err != nil && !errors.Is(err, io.EOF) {
				if ctx.Err() != nil {
					return
				}
				logger.Error("sync source failed", log.Error(err))
				c.fail(fmt.Errorf("pull: %w", err))
				return
			}
			if len(batch) == 0 {
				continue
			}
			c.batches.Add(1)
			c.events.Add(uint64(len(batch)))
			select {
			case c.produced <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *SyncChannel) forwardOutput() {
	defer c.forwarders.Done()
	defer close(c.out)
	for {
		select {
		case <-c.done:
			return
		case batch, ok := <-c.produced:
			if !ok {
				return
			}
			select {
			case c.out <- batch:
			case <-c.done:
				return
			}
		}
	}
}

func (c *SyncChannel) forwardAcks(acks <-chan Input) {
	defer c.forwarders.Done()
	for {
		select {
		case <-c.done:
			return
		case in, ok := <-acks:
			if !ok {
				return
			}
			select {
			case c.input <- in:
			case <-c.done:
				return
			case <-c.stopped:
				return
			}
		}
	}
}

func (c *SyncChannel) tick(period time.Duration) {
	defer c.forwarders.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case c.input <- Ack{}:
		case <-c.done:
			return
		case <-c.stopped:
			return
		}
		select {
		case <-ticker.C:
		case <-c.done:
			return
		}
	}
}
