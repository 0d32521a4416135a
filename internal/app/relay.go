package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/recsync/internal/config"
	"github.com/zeusync/recsync/internal/core/network/quic"
	"github.com/zeusync/recsync/internal/core/network/relay"
	"github.com/zeusync/recsync/internal/core/network/websocket"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

const shutdownTimeout = 5 * time.Second

// Relay re-serves the configured source to remote consumers.
type Relay struct {
	Config *config.Config
	Logger log.Log
	Server *relay.Server

	ready    chan struct{}
	addrOnce sync.Once
	addr     net.Addr
}

func NewRelay(cfg *config.Config, logger log.Log, server *relay.Server) *Relay {
	return &Relay{Config: cfg, Logger: logger, Server: server, ready: make(chan struct{})}
}

// Ready is closed once the relay is listening.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Addr is the bound listen address. It is nil before Ready is closed.
func (r *Relay) Addr() net.Addr {
	select {
	case <-r.ready:
		return r.addr
	default:
		return nil
	}
}

func (r *Relay) listening(addr net.Addr) {
	r.addrOnce.Do(func() {
		r.addr = addr
		close(r.ready)
	})
}

// Run serves consumers until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	var err error
	switch transport := r.Config.Relay.Transport; transport {
	case config.TransportWebSocket:
		err = r.runWebSocket(ctx)
	case config.TransportQUIC:
		err = r.runQUIC(ctx)
	default:
		err = fmt.Errorf("%w: unknown relay transport %q", config.ErrInvalidConfig, transport)
	}

	stats := r.Server.Stats()
	r.Logger.Info("relay stopped",
		log.Uint64("sessions", stats.Sessions),
		log.Uint64("frames", stats.Frames),
		log.Uint64("events", stats.Events),
	)
	return err
}

func (r *Relay) runWebSocket(ctx context.Context) error {
	cfg := r.Config.Relay
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, websocket.NewHandler(r.Server, r.Logger))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// hijacked sessions are not covered by Shutdown; tie them to ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.Logger.Info("relay listening", log.String("transport", cfg.Transport), log.String("addr", ln.Addr().String()))
		r.listening(ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (r *Relay) runQUIC(ctx context.Context) error {
	cfg := r.Config.Relay
	tlsConfig, err := serverTLS(cfg)
	if err != nil {
		return err
	}
	ln, err := quic.Listen(cfg.Listen, tlsConfig)
	if err != nil {
		return err
	}
	r.listening(ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return quic.Serve(gctx, ln, r.Server, r.Logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	return g.Wait()
}

func serverTLS(cfg config.RelayConfig) (*tls.Config, error) {
	if cfg.CertFile == "" {
		return quic.GenerateSelfSignedTLS()
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load relay certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quic.NextProto},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
