package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/recsync/internal/core/network/relay"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

// closeGrace bounds how long a finished session waits for the consumer to
// read the end of the stream and hang up.
const closeGrace = 5 * time.Second

// Listen opens a QUIC listener for relay consumers.
func Listen(addr string, tlsConfig *tls.Config) (*quic.Listener, error) {
	tlsConfig = tlsConfig.Clone()
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{NextProto}
	}
	ln, err := quic.ListenAddr(addr, tlsConfig, DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is done and runs a relay session
// on the first stream each consumer opens.
func Serve(ctx context.Context, ln *quic.Listener, server *relay.Server, logger log.Log) error {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(log.String("transport", "quic"))
	logger.Info("relay listening", log.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(ctx, conn, server, logger.With(log.String("remote", conn.RemoteAddr().String())))
	}
}

func serveConn(ctx context.Context, conn *quic.Conn, server *relay.Server, logger log.Log) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		logger.Warn("relay consumer opened no stream", log.Error(err))
		_ = conn.CloseWithError(0, "")
		return
	}
	logger.Info("relay consumer connected")
	if err := server.ServeConn(ctx, &sessionConn{StreamConn: NewStreamConn(conn, stream)}); err != nil {
		logger.Warn("relay session failed", log.Error(err))
		return
	}
	logger.Info("relay consumer done")
}

// sessionConn finishes the stream before closing the connection so frames
// already written are delivered.
type sessionConn struct {
	*StreamConn
}

func (c *sessionConn) Close() error {
	_ = c.stream.Close()
	select {
	case <-c.conn.Context().Done():
	case <-time.After(closeGrace):
	}
	return c.conn.CloseWithError(0, "")
}
