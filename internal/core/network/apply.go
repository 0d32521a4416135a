package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

// ApplyEvents replays batch into w in order. Unknown external entity ids,
// including the ones named by entity reference fields, are registered on
// first sight, but only once the value has passed validation. Events for unknown components and values that
// fail validation are skipped; the rest of the batch is still applied and the
// failures are returned joined.
func ApplyEvents(w *ecs.World, batch []NetworkEvent) error {
	var errs []error
	for i, ev := range batch {
		c, ok := w.Component(ev.Component)
		if !ok {
			errs = append(errs, fmt.Errorf("event %d: %w: %q", i, ErrUnknownComponent, ev.Component))
			continue
		}
		if ev.IsRemoval() {
			if e, known := w.EntityIndex(ev.Entity); known {
				c.Remove(e)
			}
			continue
		}
		value, err := w.ImportValue(c.Schema(), ev.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		if err := c.Set(w.RegisterEntity(ev.Entity), value); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Consume applies every batch emitted by ch to w until ctx is done or the
// channel's output closes. It returns the producer error, if any, or the
// context error.
func Consume(ctx context.Context, ch *SyncChannel, w *ecs.World, logger log.Log) error {
	if logger == nil {
		logger = log.Nop()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-ch.Events():
			if !ok {
				return ch.Err()
			}
			if err := ApplyEvents(w, batch); err != nil {
				logger.Warn("some network events were not applied",
					log.Int("batch", len(batch)),
					log.Error(err),
				)
			}
		}
	}
}
