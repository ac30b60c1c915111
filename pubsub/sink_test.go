package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/burrowgame/burrow/types"
)

func newTestSink(t *testing.T) (*Sink, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSink(client, zerolog.Nop()), client
}

func receive(t *testing.T, sub *redis.PubSub) *redis.Message {
	t.Helper()
	msg, err := sub.ReceiveTimeout(context.Background(), time.Second)
	assert.NilError(t, err)
	payload, ok := msg.(*redis.Message)
	assert.Assert(t, ok, "expected a message, got %T", msg)
	return payload
}

func TestConsoleOutputDelivered(t *testing.T) {
	sink, client := newTestSink(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, consoleChannel("alice"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx) // subscription ack
	assert.NilError(t, err)

	err = sink.ConsoleOutput(ctx, "alice", []string{"hello"}, nil, "boom")
	assert.NilError(t, err)

	var msg consoleMessage
	assert.NilError(t, json.Unmarshal([]byte(receive(t, sub).Payload), &msg))
	assert.Equal(t, msg.Tenant, "alice")
	assert.DeepEqual(t, msg.Log, []string{"hello"})
	assert.Equal(t, msg.Error, "boom")
}

func TestEmptyConsoleBatchSkipped(t *testing.T) {
	sink, client := newTestSink(t)
	ctx := context.Background()

	assert.NilError(t, sink.ConsoleOutput(ctx, "alice", nil, nil, ""))
	subs, err := client.PubSubNumSub(ctx, consoleChannel("alice")).Result()
	assert.NilError(t, err)
	assert.Equal(t, subs[consoleChannel("alice")], int64(0))
}

func TestNotifyGroupIntervalSuppressesRepeats(t *testing.T) {
	sink, client := newTestSink(t)
	ctx := context.Background()
	now := time.Unix(5000, 0)
	sink.now = func() time.Time { return now }

	sub := client.Subscribe(ctx, notifyChannel("alice"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	assert.NilError(t, err)

	notification := types.Notification{Tenant: "alice", Message: "low energy", GroupInterval: 5}
	assert.NilError(t, sink.Notify(ctx, notification))
	assert.NilError(t, sink.Notify(ctx, notification))

	receive(t, sub)
	// The repeat inside the interval was dropped.
	_, err = sub.ReceiveTimeout(ctx, 100*time.Millisecond)
	assert.Assert(t, err != nil)

	now = now.Add(6 * time.Minute)
	assert.NilError(t, sink.Notify(ctx, notification))
	receive(t, sub)
}

func TestTickDoneThrottled(t *testing.T) {
	sink, client := newTestSink(t)
	ctx := context.Background()
	now := time.Unix(5000, 0)
	sink.now = func() time.Time { return now }

	sub := client.Subscribe(ctx, channelTickDone)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	assert.NilError(t, err)

	assert.NilError(t, sink.PublishTickDone(ctx, 7))
	assert.NilError(t, sink.PublishTickDone(ctx, 8))

	var msg tickDoneMessage
	assert.NilError(t, json.Unmarshal([]byte(receive(t, sub).Payload), &msg))
	assert.Equal(t, msg.Tick, uint64(7))
	_, err = sub.ReceiveTimeout(ctx, 100*time.Millisecond)
	assert.Assert(t, err != nil)

	now = now.Add(time.Second)
	assert.NilError(t, sink.PublishTickDone(ctx, 9))
	assert.NilError(t, json.Unmarshal([]byte(receive(t, sub).Payload), &msg))
	assert.Equal(t, msg.Tick, uint64(9))
}

func TestAlertPublished(t *testing.T) {
	sink, client := newTestSink(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, channelAlerts)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	assert.NilError(t, err)

	assert.NilError(t, sink.Alert(ctx, "alice", 3))

	var msg alertMessage
	assert.NilError(t, json.Unmarshal([]byte(receive(t, sub).Payload), &msg))
	assert.Equal(t, msg.Tenant, "alice")
	assert.Equal(t, msg.Failures, 3)
}
