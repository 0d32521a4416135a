package injector

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zeusync/recsync/internal/config"
	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/network"
	"github.com/zeusync/recsync/internal/core/network/quic"
	"github.com/zeusync/recsync/internal/core/network/redis"
	"github.com/zeusync/recsync/internal/core/network/relay"
	"github.com/zeusync/recsync/internal/core/network/websocket"
	"github.com/zeusync/recsync/internal/core/observability/log"
	"github.com/zeusync/recsync/internal/core/snapshot"
)

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.NewWithFormat(level, cfg.Log.Format)
}

func ProvideLog(logger *log.Logger) log.Log {
	return logger
}

// ProvideWorld defines the configured components in declaration order.
func ProvideWorld(cfg *config.Config, logger log.Log) (*ecs.World, error) {
	w := ecs.NewWorld(ecs.WithLogger(logger))
	for _, comp := range cfg.Components {
		schema, err := comp.ParseSchema()
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", comp.ID, err)
		}
		opts := []ecs.ComponentOption{ecs.WithID(comp.ID)}
		if comp.Indexed {
			opts = append(opts, ecs.Indexed())
		}
		if _, err := ecs.DefineComponent(w, schema, opts...); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func ProvideSourceFactory(cfg *config.Config, logger log.Log) (network.SourceFactory, error) {
	src := cfg.Source
	logger = logger.With(log.String("source", src.Kind))
	switch src.Kind {
	case config.SourceSnapshot:
		path := src.Snapshot.Path
		return func(ctx context.Context) (network.Source, error) {
			snap, err := snapshot.ReadFile(path)
			if err != nil {
				return nil, err
			}
			logger.Info("replaying snapshot",
				log.String("path", path),
				log.String("hash", snap.StateHash),
				log.Int("entries", len(snap.State)),
			)
			return snap.Factory()(ctx)
		}, nil
	case config.SourceRedis:
		return redis.Factory(&goredis.Options{
			Addr:     src.Redis.Addr,
			Password: src.Redis.Password,
			DB:       src.Redis.DB,
		}, src.Redis.Stream), nil
	case config.SourceWebSocket:
		return websocket.Factory(src.WebSocket.URL, nil, logger), nil
	case config.SourceQUIC:
		tlsConfig := quic.ClientTLS(src.QUIC.ServerName, src.QUIC.InsecureSkipVerify)
		return quic.Factory(src.QUIC.Addr, tlsConfig, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalidConfig, src.Kind)
	}
}

func ProvideSyncChannel(cfg *config.Config, factory network.SourceFactory, logger log.Log) (*network.SyncChannel, func()) {
	ch := network.NewSyncChannel(factory,
		network.WithAckPeriod(cfg.Sync.AckPeriod),
		network.WithBatchSize(cfg.Sync.BatchSize),
		network.WithCursor(cfg.Sync.Cursor),
		network.WithLogger(logger.With(log.String("category", "sync"))),
	)
	return ch, ch.Dispose
}

func ProvideRelayServer(cfg *config.Config, factory network.SourceFactory, logger log.Log) *relay.Server {
	return relay.NewServer(factory,
		relay.WithPollInterval(cfg.Relay.PollInterval),
		relay.WithBatchSize(cfg.Relay.BatchSize),
		relay.WithLogger(logger.With(log.String("category", "relay"))),
	)
}
