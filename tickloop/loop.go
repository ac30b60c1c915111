// Package tickloop drives the main game loop: one tick fans user executions
// and room passes out through the work queues, waits for both to drain, runs
// global processing, then advances the clock.
package tickloop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/queue"
	"github.com/burrowgame/burrow/telemetry"
	"github.com/burrowgame/burrow/types"
)

// Stage names one phase of a tick. Stages always run in the declared order;
// the current stage is observable for diagnostics.
type Stage string

const (
	StageStart            Stage = "start"
	StageGetActiveUsers   Stage = "get_active_users"
	StageEnqueueUsers     Stage = "enqueue_users"
	StageWaitUsersDrained Stage = "wait_users_drained"
	StageGetActiveRooms   Stage = "get_active_rooms"
	StageEnqueueRooms     Stage = "enqueue_rooms"
	StageWaitRoomsDrained Stage = "wait_rooms_drained"
	StageCommitPre        Stage = "commit_pre"
	StageGlobalProcessing Stage = "global_processing"
	StageCommitPost       Stage = "commit_post"
	StageIncrementClock   Stage = "increment_clock"
	StageUpdateRoomIdx    Stage = "update_room_indexes"
	StageNotifyDone       Stage = "notify_done"
	StageFinish           Stage = "finish"
)

const pausePollInterval = 100 * time.Millisecond

// Store is the slice of storage the loop needs.
type Store interface {
	ActiveUsers(ctx context.Context) ([]string, error)
	ActiveRooms(ctx context.Context) ([]string, error)
	GameTime(ctx context.Context) (uint64, error)
	IncrementGameTime(ctx context.Context) (uint64, error)
	SetRoomStatus(ctx context.Context, room string, tick uint64) error
	TakeGlobalIntents(ctx context.Context) ([]types.IntentEnvelope, error)
}

// Broadcaster announces tick completion to subscribers.
type Broadcaster interface {
	PublishTickDone(ctx context.Context, tick uint64) error
}

// GlobalProcessor handles room-independent intents after both queues have
// drained. Processors run in registration order; a failing processor is
// logged and the rest still run.
type GlobalProcessor interface {
	Name() string
	Process(ctx context.Context, tick uint64, intents []types.IntentEnvelope) error
}

type Loop struct {
	store       Store
	users       *queue.Channel
	rooms       *queue.Channel
	broadcaster Broadcaster
	processors  []GlobalProcessor
	log         zerolog.Logger

	minTickMillis atomic.Int64
	paused        atomic.Bool
	stage         atomic.Value // Stage
	tickCount     atomic.Uint64

	// claimAge is how long an in-flight queue item may go un-acked before
	// the Start stage hands it back to pending.
	claimAge time.Duration
}

func New(
	store Store, users, rooms *queue.Channel, broadcaster Broadcaster,
	processors []GlobalProcessor, minTickDuration time.Duration, log zerolog.Logger,
) *Loop {
	l := &Loop{
		store:       store,
		users:       users,
		rooms:       rooms,
		broadcaster: broadcaster,
		processors:  processors,
		log:         log,
		claimAge:    2 * minTickDuration,
	}
	if l.claimAge < time.Second {
		l.claimAge = time.Second
	}
	l.minTickMillis.Store(minTickDuration.Milliseconds())
	l.stage.Store(StageStart)
	return l
}

// Pause stops the loop from starting new ticks; the in-progress tick
// completes normally.
func (l *Loop) Pause()  { l.paused.Store(true) }
func (l *Loop) Resume() { l.paused.Store(false) }

func (l *Loop) Paused() bool { return l.paused.Load() }

func (l *Loop) SetMinTickDuration(d time.Duration) {
	l.minTickMillis.Store(d.Milliseconds())
}

func (l *Loop) MinTickDuration() time.Duration {
	return time.Duration(l.minTickMillis.Load()) * time.Millisecond
}

// CurrentStage reports the stage the loop is in; between ticks it reads as
// Finish.
func (l *Loop) CurrentStage() Stage {
	return l.stage.Load().(Stage)
}

// TickCount reports the number of ticks completed since the loop started.
func (l *Loop) TickCount() uint64 {
	return l.tickCount.Load()
}

// Run ticks until ctx is cancelled. A failed tick is logged and the next
// tick proceeds: the tick is the recovery unit.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Dur("minTick", l.MinTickDuration()).Msg("tick loop starting")
	for {
		if err := ctx.Err(); err != nil {
			l.log.Info().Msg("tick loop stopped")
			return nil
		}
		if l.paused.Load() {
			if err := sleepCtx(ctx, pausePollInterval); err != nil {
				return nil
			}
			continue
		}

		start := time.Now()
		if err := l.runTick(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Info().Msg("tick loop stopped")
				return nil
			}
			l.log.Error().Err(err).Msg("tick failed")
		} else {
			l.tickCount.Add(1)
		}

		if remaining := l.MinTickDuration() - time.Since(start); remaining > 0 {
			if err := sleepCtx(ctx, remaining); err != nil {
				return nil
			}
		}
	}
}

func (l *Loop) runTick(ctx context.Context) error {
	tickStart := time.Now()

	if err := l.stageStart(ctx); err != nil {
		return err
	}

	users, err := stageValue(l, ctx, StageGetActiveUsers, l.store.ActiveUsers)
	if err != nil {
		return err
	}
	if err := l.runStage(ctx, StageEnqueueUsers, func(ctx context.Context) error {
		return l.users.EnqueueMany(ctx, users)
	}); err != nil {
		return err
	}
	if err := l.runStage(ctx, StageWaitUsersDrained, l.users.WaitUntilDrained); err != nil {
		return err
	}

	rooms, err := stageValue(l, ctx, StageGetActiveRooms, l.store.ActiveRooms)
	if err != nil {
		return err
	}
	if err := l.runStage(ctx, StageEnqueueRooms, func(ctx context.Context) error {
		return l.rooms.EnqueueMany(ctx, rooms)
	}); err != nil {
		return err
	}
	if err := l.runStage(ctx, StageWaitRoomsDrained, l.rooms.WaitUntilDrained); err != nil {
		return err
	}

	var globalBatch []types.IntentEnvelope
	if err := l.runStage(ctx, StageCommitPre, func(ctx context.Context) error {
		batch, err := l.store.TakeGlobalIntents(ctx)
		globalBatch = batch
		return err
	}); err != nil {
		return err
	}

	tick, err := l.store.GameTime(ctx)
	if err != nil {
		return eris.Wrap(err, "read game time")
	}
	if err := l.runStage(ctx, StageGlobalProcessing, func(ctx context.Context) error {
		l.runGlobalProcessors(ctx, tick, globalBatch)
		return nil
	}); err != nil {
		return err
	}

	if err := l.runStage(ctx, StageCommitPost, func(ctx context.Context) error {
		l.emitQueueDepths(ctx)
		return nil
	}); err != nil {
		return err
	}

	var newTick uint64
	if err := l.runStage(ctx, StageIncrementClock, func(ctx context.Context) error {
		t, err := l.store.IncrementGameTime(ctx)
		newTick = t
		return err
	}); err != nil {
		return err
	}

	if err := l.runStage(ctx, StageUpdateRoomIdx, func(ctx context.Context) error {
		for _, room := range rooms {
			if err := l.store.SetRoomStatus(ctx, room, newTick); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := l.runStage(ctx, StageNotifyDone, func(ctx context.Context) error {
		return l.broadcaster.PublishTickDone(ctx, newTick)
	}); err != nil {
		return err
	}

	l.enterStage(StageFinish)
	l.log.Info().
		Uint64("tick", newTick).
		Int("users", len(users)).
		Int("rooms", len(rooms)).
		Dur("elapsed", time.Since(tickStart)).
		Msg("tick finished")
	return nil
}

// stageStart recovers queue items whose worker died mid-claim, then clears
// the way for the new tick.
func (l *Loop) stageStart(ctx context.Context) error {
	return l.runStage(ctx, StageStart, func(ctx context.Context) error {
		for _, ch := range []*queue.Channel{l.users, l.rooms} {
			requeued, err := ch.RequeueExpired(ctx, l.claimAge)
			if err != nil {
				return err
			}
			if requeued > 0 {
				l.log.Warn().Str("stream", ch.Stream()).Int("requeued", requeued).
					Msg("recovered expired queue claims")
			}
		}
		return nil
	})
}

func (l *Loop) runGlobalProcessors(ctx context.Context, tick uint64, batch []types.IntentEnvelope) {
	for _, proc := range l.processors {
		if err := proc.Process(ctx, tick, batch); err != nil {
			l.log.Error().Err(err).Str("processor", proc.Name()).Msg("global processor failed")
		}
	}
}

func (l *Loop) emitQueueDepths(ctx context.Context) {
	for _, ch := range []*queue.Channel{l.users, l.rooms} {
		depth, err := ch.PendingCount(ctx)
		if err != nil {
			l.log.Warn().Err(err).Str("stream", ch.Stream()).Msg("failed to read queue depth")
			continue
		}
		telemetry.EmitGauge("queue.depth", float64(depth), []string{"stream:" + ch.Stream()})
	}
}

func (l *Loop) runStage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "cancelled before stage %s", stage)
	}
	l.enterStage(stage)
	start := time.Now()
	defer telemetry.EmitStageStat(start, string(stage))
	if err := fn(ctx); err != nil {
		return eris.Wrapf(err, "stage %s", stage)
	}
	return nil
}

func stageValue(l *Loop, ctx context.Context, stage Stage, fn func(context.Context) ([]string, error)) ([]string, error) {
	var out []string
	err := l.runStage(ctx, stage, func(ctx context.Context) error {
		values, err := fn(ctx)
		out = values
		return err
	})
	return out, err
}

func (l *Loop) enterStage(stage Stage) {
	l.stage.Store(stage)
	l.log.Debug().Str("stage", string(stage)).Msg("entering stage")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
