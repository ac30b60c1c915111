// Package worker runs the consumer loops that service the tick queues: the
// runner loop executes tenant code, the processor loop applies room intent
// batches. Both are plain fetch/work/ack loops; parallelism comes from
// starting several of them.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/queue"
)

const (
	fetchTimeout = time.Second
	idleSleep    = 50 * time.Millisecond
)

// TenantRunner executes one tenant's code for the current tick.
type TenantRunner interface {
	RunTenant(ctx context.Context, tenant string) error
}

// RoomProcessor applies one room's pending intent batch.
type RoomProcessor interface {
	ProcessRoom(ctx context.Context, room string) error
}

// RunnerLoop consumes the users stream. It returns when ctx is cancelled,
// after finishing the item it holds. A failed run is logged and the item is
// still acked: retrying the same tenant in the same tick would just fail
// again, and the next tick re-enqueues everyone anyway.
func RunnerLoop(ctx context.Context, users *queue.Channel, runner TenantRunner, log zerolog.Logger) {
	log.Info().Msg("runner worker started")
	consume(ctx, users, log, func(ctx context.Context, tenant string) error {
		return runner.RunTenant(ctx, tenant)
	})
	log.Info().Msg("runner worker stopped")
}

// ProcessorLoop consumes the rooms stream with the same ack discipline as
// RunnerLoop.
func ProcessorLoop(ctx context.Context, rooms *queue.Channel, processor RoomProcessor, log zerolog.Logger) {
	log.Info().Msg("processor worker started")
	consume(ctx, rooms, log, func(ctx context.Context, room string) error {
		return processor.ProcessRoom(ctx, room)
	})
	log.Info().Msg("processor worker stopped")
}

func consume(ctx context.Context, ch *queue.Channel, log zerolog.Logger, work func(context.Context, string) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		key, err := ch.Fetch(ctx, fetchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("stream", ch.Stream()).Msg("fetch failed")
			sleepCtx(ctx, idleSleep)
			continue
		}
		if key == "" {
			sleepCtx(ctx, idleSleep)
			continue
		}

		if err := work(ctx, key); err != nil {
			log.Error().Err(err).Str("stream", ch.Stream()).Str("key", key).Msg("work item failed")
		}
		// Ack even on failure so the tick barrier can pass.
		if err := ch.MarkDone(context.WithoutCancel(ctx), key); err != nil {
			log.Error().Err(err).Str("stream", ch.Stream()).Str("key", key).Msg("failed to ack work item")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
