// Package app runs a configured world in sync with its source.
package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/recsync/internal/config"
	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/network"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

type App struct {
	Config  *config.Config
	Logger  log.Log
	World   *ecs.World
	Channel *network.SyncChannel
}

func New(cfg *config.Config, logger log.Log, world *ecs.World, ch *network.SyncChannel) *App {
	return &App{Config: cfg, Logger: logger, World: world, Channel: ch}
}

// Run applies batches until ctx is cancelled or the source ends. A source
// that is exhausted cleanly returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	consumed := make(chan struct{})

	g.Go(func() error {
		defer close(consumed)
		err := network.Consume(ctx, a.Channel, a.World, a.Logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if interval := a.Config.Sync.StatsInterval; interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-consumed:
					return nil
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					a.logStats()
				}
			}
		})
	}

	err := g.Wait()
	a.logStats()
	return err
}

func (a *App) logStats() {
	stats := a.Channel.Stats()
	components := a.World.Components()
	var updates, deliveries uint64
	for _, c := range components {
		m := c.UpdateMetrics()
		updates += m.Published
		deliveries += m.Delivered
	}
	a.Logger.Info("sync stats",
		log.Uint64("acks", stats.Acks),
		log.Uint64("batches", stats.Batches),
		log.Uint64("events", stats.Events),
		log.Uint64("updates", updates),
		log.Uint64("deliveries", deliveries),
		log.Int("entities", len(a.World.Entities())),
		log.Int("components", len(components)),
	)
}
