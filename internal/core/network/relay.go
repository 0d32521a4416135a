package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/recsync/internal/core/observability/log"
)

// FrameConn is a message oriented connection to a relay.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close() error
}

var _ Source = (*RelaySource)(nil)

// RelaySource is a Source fed by a relay that pushes Frames over a FrameConn.
// The subscription is opened lazily on the first pull so that a Seek issued
// before it does not cost an extra round trip.
type RelaySource struct {
	conn   FrameConn
	logger log.Log
	buf    relayBuffer

	cursor     string
	subscribed bool

	closeOnce sync.Once
	closed    chan struct{}
	reader    sync.WaitGroup
}

func NewRelaySource(conn FrameConn, logger log.Log) *RelaySource {
	if logger == nil {
		logger = log.Nop()
	}
	s := &RelaySource{
		conn:   conn,
		logger: logger,
		closed: make(chan struct{}),
	}
	s.reader.Add(1)
	go s.readLoop()
	return s
}

func (s *RelaySource) readLoop() {
	defer s.reader.Done()
	for {
		data, err := s.conn.ReadFrame()
		if err != nil {
			select {
			case <-s.closed:
				s.buf.Fail(errRelayClosed)
			default:
				s.buf.Fail(fmt.Errorf("relay read: %w", err))
			}
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			s.logger.Warn("dropping relay frame", log.Int("bytes", len(data)), log.Error(err))
			continue
		}
		if !s.buf.Push(frame) {
			s.logger.Debug("dropping stale relay frame", log.Uint64("subscription", frame.Subscription))
		}
	}
}

var errRelayClosed = errors.New("relay source closed")

func (s *RelaySource) subscribe(ctx context.Context) error {
	req := SubscribeRequest{ID: s.buf.Subscribe(), Cursor: s.cursor}
	data, err := EncodeSubscribe(req)
	if err != nil {
		return err
	}
	if err := s.conn.WriteFrame(ctx, data); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	s.subscribed = true
	s.logger.Debug("relay subscription opened", log.Uint64("subscription", req.ID), log.String("cursor", req.Cursor))
	return nil
}

func (s *RelaySource) Seek(ctx context.Context, cursor string) error {
	s.cursor = cursor
	if !s.subscribed {
		return nil
	}
	return s.subscribe(ctx)
}

func (s *RelaySource) Next(ctx context.Context, limit int) ([]NetworkEvent, error) {
	if !s.subscribed {
		if err := s.subscribe(ctx); err != nil {
			return nil, err
		}
	}
	return s.buf.Drain(limit)
}

// Close closes the connection and waits for the reader to exit.
func (s *RelaySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		s.reader.Wait()
	})
	return err
}
