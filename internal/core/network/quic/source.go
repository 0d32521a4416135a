// Package quic carries the relay protocol over one QUIC stream per
// consumer. Subscribe requests and frames are newline delimited JSON.
package quic

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/recsync/internal/core/network"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

// NextProto is the ALPN protocol negotiated with relays.
const NextProto = "recsync-relay"

const (
	DefaultIdleTimeout = 30 * time.Second
	DefaultKeepAlive   = 15 * time.Second
	maxFrameSize       = 16 << 20
)

var _ network.FrameConn = (*StreamConn)(nil)

// StreamConn frames one bidirectional QUIC stream.
type StreamConn struct {
	conn    *quic.Conn
	stream  *quic.Stream
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func NewStreamConn(conn *quic.Conn, stream *quic.Stream) *StreamConn {
	return &StreamConn{
		conn:   conn,
		stream: stream,
		reader: bufio.NewReaderSize(stream, 64<<10),
	}
}

// ReadFrame returns io.EOF when the peer finished the stream or closed the
// connection without an error code.
func (c *StreamConn) ReadFrame() ([]byte, error) {
	line, err := ReadLine(c.reader)
	if err != nil && IsNormalClose(err) {
		return nil, io.EOF
	}
	return line, err
}

func (c *StreamConn) WriteFrame(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		_ = c.stream.SetWriteDeadline(d)
		defer func() { _ = c.stream.SetWriteDeadline(time.Time{}) }()
	}
	return WriteLine(c.stream, data)
}

func (c *StreamConn) Close() error {
	c.stream.CancelRead(0)
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "source closed")
}

// IsNormalClose reports whether err ends a stream on purpose.
func IsNormalClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var appErr *quic.ApplicationError
	return errors.As(err, &appErr) && appErr.ErrorCode == 0
}

// ReadLine reads one newline terminated frame without the delimiter.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxFrameSize {
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", network.ErrInvalidFrame, maxFrameSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// WriteLine writes data followed by a newline.
func WriteLine(w io.Writer, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

func DefaultConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  DefaultIdleTimeout,
		KeepAlivePeriod: DefaultKeepAlive,
	}
}

// Dial connects to the relay at addr and opens the event stream.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, logger log.Log) (*network.RelaySource, error) {
	tlsConfig = tlsConfig.Clone()
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{NextProto}
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("open stream to %s: %w", addr, err)
	}

	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(log.String("relay", addr))
	logger.Info("connected to quic relay")
	return network.NewRelaySource(NewStreamConn(conn, stream), logger), nil
}

func Factory(addr string, tlsConfig *tls.Config, logger log.Log) network.SourceFactory {
	return func(ctx context.Context) (network.Source, error) {
		return Dial(ctx, addr, tlsConfig, logger)
	}
}
