// Package websocket carries the relay protocol over WebSocket. Subscribe
// requests and frames travel as JSON text messages.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/recsync/internal/core/network"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultMaxMessageSize   = 16 << 20
)

var _ network.FrameConn = (*Conn)(nil)

// Conn adapts a gorilla connection to network.FrameConn.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewConn(conn *websocket.Conn) *Conn {
	conn.SetReadLimit(DefaultMaxMessageSize)
	return &Conn{conn: conn}
}

func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if IsNormalClose(err) {
				return nil, io.EOF
			}
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *Conn) WriteFrame(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(DefaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Dial connects to the relay at url and returns a source reading from it.
func Dial(ctx context.Context, url string, header http.Header, logger log.Log) (*network.RelaySource, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(log.String("relay", url))
	logger.Info("connected to websocket relay")
	return network.NewRelaySource(NewConn(conn), logger), nil
}

func Factory(url string, header http.Header, logger log.Log) network.SourceFactory {
	return func(ctx context.Context) (network.Source, error) {
		return Dial(ctx, url, header, logger)
	}
}

// IsNormalClose reports whether err is the relay closing the connection
// on purpose.
func IsNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
