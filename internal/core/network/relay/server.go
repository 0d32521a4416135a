// Package relay serves sync sources to remote consumers. A consumer sends
// SubscribeRequests over a network.FrameConn and the relay answers with
// Frames pulled from a fresh source positioned at the requested cursor.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/recsync/internal/core/network"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

const (
	DefaultPollInterval = 16 * time.Millisecond
	DefaultBatchSize    = network.DefaultBatchSize
)

type options struct {
	pollInterval time.Duration
	batchSize    int
	logger       log.Log
}

type Option func(*options)

// WithPollInterval sets how often a subscribed source is pulled.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithBatchSize caps the number of events per frame.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

// Stats counts relay activity across all sessions.
type Stats struct {
	Sessions uint64
	Frames   uint64
	Events   uint64
}

type Server struct {
	factory network.SourceFactory
	opts    options

	sessions atomic.Uint64
	frames   atomic.Uint64
	events   atomic.Uint64
}

func NewServer(factory network.SourceFactory, opts ...Option) *Server {
	o := options{
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		logger:       log.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{factory: factory, opts: o}
}

func (s *Server) Stats() Stats {
	return Stats{
		Sessions: s.sessions.Load(),
		Frames:   s.frames.Load(),
		Events:   s.events.Load(),
	}
}

// ServeConn runs one relay session and closes conn when it ends. It returns
// nil when the consumer disconnects, when ctx is done or when the subscribed
// source is exhausted.
func (s *Server) ServeConn(ctx context.Context, conn network.FrameConn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = conn.Close() }()

	s.sessions.Add(1)
	sess := &session{
		server: s,
		conn:   conn,
		logger: s.opts.logger.With(log.String("session", uuid.NewString())),
	}
	defer sess.closeSource()

	requests := make(chan network.SubscribeRequest)
	readErr := make(chan error, 1)
	go sess.readRequests(ctx, requests, readErr)

	sess.logger.Debug("relay session opened", log.Duration("poll_interval", s.opts.pollInterval))
	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				sess.logger.Debug("relay consumer disconnected")
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		case req := <-requests:
			if err := sess.subscribe(ctx, req); err != nil {
				return err
			}
		case <-ticker.C:
			done, err := sess.pump(ctx)
			if err != nil || done {
				return err
			}
		}
	}
}

type session struct {
	server *Server
	conn   network.FrameConn
	logger log.Log

	src          network.Source
	subscription uint64
}

func (s *session) readRequests(ctx context.Context, requests chan<- network.SubscribeRequest, readErr chan<- error) {
	for {
		data, err := s.conn.ReadFrame()
		if err != nil {
			readErr <- err
			return
		}
		req, err := network.DecodeSubscribe(data)
		if err != nil {
			s.logger.Warn("dropping relay request", log.Int("bytes", len(data)), log.Error(err))
			continue
		}
		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

// subscribe replaces the current source with a fresh one at req.Cursor.
func (s *session) subscribe(ctx context.Context, req network.SubscribeRequest) error {
	s.closeSource()
	src, err := s.server.factory(ctx)
	if err != nil {
		return fmt.Errorf("open relay source: %w", err)
	}
	if req.Cursor != "" {
		if err := src.Seek(ctx, req.Cursor); err != nil {
			_ = src.Close()
			return fmt.Errorf("seek relay source to %q: %w", req.Cursor, err)
		}
	}
	s.src = src
	s.subscription = req.ID
	s.logger.Debug("relay subscription started", log.Uint64("subscription", req.ID), log.String("cursor", req.Cursor))
	return nil
}

// pump forwards one batch. done is true once the source is exhausted.
func (s *session) pump(ctx context.Context) (done bool, err error) {
	if s.src == nil {
		return false, nil
	}
	batch, err := s.src.Next(ctx, s.server.opts.batchSize)
	if errors.Is(err, io.EOF) && len(batch) == 0 {
		s.logger.Debug("relay source exhausted", log.Uint64("subscription", s.subscription))
		return true, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("relay pull: %w", err)
	}
	if len(batch) == 0 {
		return false, nil
	}

	data, err := network.EncodeFrame(network.Frame{Subscription: s.subscription, Events: batch})
	if err != nil {
		return false, err
	}
	if err := s.conn.WriteFrame(ctx, data); err != nil {
		return false, fmt.Errorf("relay write: %w", err)
	}
	s.server.frames.Add(1)
	s.server.events.Add(uint64(len(batch)))
	return false, nil
}

func (s *session) closeSource() {
	if s.src == nil {
		return
	}
	if err := s.src.Close(); err != nil {
		s.logger.Warn("failed to close relay source", log.Error(err))
	}
	s.src = nil
}
