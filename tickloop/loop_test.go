package tickloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/burrowgame/burrow/queue"
	"github.com/burrowgame/burrow/storage"
	"github.com/burrowgame/burrow/types"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	ticks []uint64
}

func (f *fakeBroadcaster) PublishTickDone(_ context.Context, tick uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, tick)
	return nil
}

func (f *fakeBroadcaster) published() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.ticks...)
}

type recordingProcessor struct {
	mu      sync.Mutex
	name    string
	batches [][]types.IntentEnvelope
}

func (p *recordingProcessor) Name() string { return p.name }

func (p *recordingProcessor) Process(_ context.Context, _ uint64, intents []types.IntentEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, intents)
	return nil
}

func (p *recordingProcessor) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

type loopFixture struct {
	loop        *Loop
	store       *storage.Storage
	users       *queue.Channel
	rooms       *queue.Channel
	broadcaster *fakeBroadcaster
	processor   *recordingProcessor
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	st := storage.NewStorageWithClient(client, "burrow-test")
	store := &st
	users := queue.Open(client, queue.StreamUsers)
	rooms := queue.Open(client, queue.StreamRooms)
	broadcaster := &fakeBroadcaster{}
	processor := &recordingProcessor{name: "recorder"}
	loop := New(store, users, rooms, broadcaster,
		[]GlobalProcessor{processor}, 10*time.Millisecond, zerolog.Nop())
	return &loopFixture{
		loop:        loop,
		store:       store,
		users:       users,
		rooms:       rooms,
		broadcaster: broadcaster,
		processor:   processor,
	}
}

// drain consumes a stream for the duration of the test so WaitUntilDrained
// can pass, recording every key it handles.
func drain(t *testing.T, ctx context.Context, ch *queue.Channel) func() []string {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	go func() {
		for ctx.Err() == nil {
			key, err := ch.Fetch(ctx, time.Second)
			if err != nil || key == "" {
				continue
			}
			mu.Lock()
			seen = append(seen, key)
			mu.Unlock()
			_ = ch.MarkDone(ctx, key)
		}
	}()
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTickAdvancesClock(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	waitFor(t, func() bool { return f.loop.TickCount() >= 2 })
	cancel()
	assert.NilError(t, <-done)

	tick, err := f.store.GameTime(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, tick >= 2)
	assert.Assert(t, len(f.broadcaster.published()) >= 2)
}

func TestTickEnqueuesUsersAndRooms(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.NilError(t, f.store.AddActiveUser(ctx, "alice"))
	assert.NilError(t, f.store.AddActiveRoom(ctx, "W1N1"))

	seenUsers := drain(t, ctx, f.users)
	seenRooms := drain(t, ctx, f.rooms)

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	waitFor(t, func() bool { return f.loop.TickCount() >= 1 })
	cancel()
	assert.NilError(t, <-done)

	users := seenUsers()
	rooms := seenRooms()
	assert.Assert(t, len(users) >= 1)
	assert.Equal(t, users[0], "alice")
	assert.Assert(t, len(rooms) >= 1)
	assert.Equal(t, rooms[0], "W1N1")

	// UpdateRoomIndexes ran for the active room. The loop context is
	// cancelled by now, so assert against a live one.
	status, err := f.store.Client.HGet(context.Background(), "rooms:status", "W1N1").Result()
	assert.NilError(t, err)
	assert.Assert(t, status != "")
}

func TestGlobalProcessorReceivesBatch(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intents := []types.IntentEnvelope{{Tenant: "alice", Name: "createOrder"}}
	assert.NilError(t, f.store.AppendGlobalIntents(ctx, intents))

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	waitFor(t, func() bool { return f.processor.batchCount() >= 2 })
	cancel()
	assert.NilError(t, <-done)

	f.processor.mu.Lock()
	defer f.processor.mu.Unlock()
	assert.Equal(t, len(f.processor.batches[0]), 1)
	assert.Equal(t, f.processor.batches[0][0].Name, "createOrder")
	// The batch is consumed; the next tick sees nothing.
	assert.Equal(t, len(f.processor.batches[1]), 0)
}

func TestPauseStopsTicking(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.loop.Pause()
	assert.Assert(t, f.loop.Paused())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, f.loop.TickCount(), uint64(0))

	f.loop.Resume()
	waitFor(t, func() bool { return f.loop.TickCount() >= 1 })
	cancel()
	assert.NilError(t, <-done)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NilError(t, f.loop.Run(ctx))
}

func TestSetMinTickDuration(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.SetMinTickDuration(2 * time.Second)
	assert.Equal(t, f.loop.MinTickDuration(), 2*time.Second)
}
