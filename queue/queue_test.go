package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"

	"github.com/burrowgame/burrow/queue"
)

func newTestChannel(t *testing.T) *queue.Channel {
	rs := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: rs.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.Open(client, queue.StreamRooms)
}

func TestEnqueueFetchMarkDone(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1", "W2N2"}))

	count, err := ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(2), count)

	key, err := ch.Fetch(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, "W1N1", key)

	// Fetched item still counts until acknowledged.
	count, err = ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(2), count)

	assert.NilError(t, ch.MarkDone(ctx, key))
	count, err = ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))
	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))

	count, err := ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(1), count)

	// Still idempotent while the key is in-flight.
	key, err := ch.Fetch(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, "W1N1", key)
	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))

	count, err = ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(1), count)

	// After MarkDone the key may be enqueued again.
	assert.NilError(t, ch.MarkDone(ctx, key))
	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))
	count, err = ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFetchTimeoutReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	key, err := ch.Fetch(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, "", key)
}

func TestFetchRaisesSubSecondTimeout(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	// Blocking reads have a one second floor; a shorter timeout must wait
	// the floor out instead of erroring or spinning.
	start := time.Now()
	key, err := ch.Fetch(ctx, 20*time.Millisecond)
	assert.NilError(t, err)
	assert.Equal(t, "", key)
	assert.Assert(t, time.Since(start) >= 900*time.Millisecond)
}

func TestWaitUntilDrained(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))

	done := make(chan error, 1)
	go func() {
		done <- ch.WaitUntilDrained(ctx)
	}()

	key, err := ch.Fetch(ctx, time.Second)
	assert.NilError(t, err)
	assert.NilError(t, ch.MarkDone(ctx, key))

	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntilDrained did not return after the stream drained")
	}
}

func TestWaitUntilDrainedHonorsCancellation(t *testing.T) {
	ch := newTestChannel(t)
	ctx, cancel := context.WithCancel(context.Background())

	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))

	done := make(chan error, 1)
	go func() {
		done <- ch.WaitUntilDrained(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.Assert(t, err != nil)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntilDrained did not observe cancellation")
	}
}

func TestRequeueExpired(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1"}))
	key, err := ch.Fetch(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, "W1N1", key)

	// A fresh claim is not expired.
	requeued, err := ch.RequeueExpired(ctx, time.Hour)
	assert.NilError(t, err)
	assert.Equal(t, 0, requeued)

	// With a zero max age every claim is stale; the key becomes fetchable
	// again without a duplicate appearing.
	requeued, err = ch.RequeueExpired(ctx, 0)
	assert.NilError(t, err)
	assert.Equal(t, 1, requeued)

	count, err := ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(1), count)

	key, err = ch.Fetch(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, "W1N1", key)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(t)

	assert.NilError(t, ch.EnqueueMany(ctx, []string{"W1N1", "W2N2"}))
	assert.NilError(t, ch.Reset(ctx))

	count, err := ch.PendingCount(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(0), count)
}
