// Package queue implements the durable, at-least-once work queue that
// coordinates the tick pipeline. Each logical stream (rooms, users) is an
// independent FIFO backed by redis: a pending list, an in-flight list, a
// membership set that makes enqueues idempotent, and a claims hash recording
// when each in-flight item was fetched so a crashed worker's items can be
// recovered.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const (
	StreamRooms = "rooms"
	StreamUsers = "users"

	drainPollInterval = 50 * time.Millisecond
)

// Channel is one named stream. Producers and consumers may share a Channel;
// every operation is a stateless redis command, so there is no connection
// cursor to contend over.
type Channel struct {
	client *redis.Client
	stream string
	log    zerolog.Logger

	pendingKey  string
	inflightKey string
	membersKey  string
	claimsKey   string
}

func Open(client *redis.Client, stream string) *Channel {
	return &Channel{
		client: client,
		stream: stream,
		log:    zlog.With().Str("stream", stream).Logger(),

		pendingKey:  "queue:" + stream + ":pending",
		inflightKey: "queue:" + stream + ":inflight",
		membersKey:  "queue:" + stream + ":members",
		claimsKey:   "queue:" + stream + ":claims",
	}
}

func (c *Channel) Stream() string {
	return c.stream
}

// EnqueueMany adds the given keys to the stream. A key that is already
// pending or in-flight is skipped, so re-enqueuing never duplicates work.
func (c *Channel) EnqueueMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		added, err := c.client.SAdd(ctx, c.membersKey, key).Result()
		if err != nil {
			return eris.Wrapf(err, "failed to enqueue %q onto %q", key, c.stream)
		}
		if added == 0 {
			continue // already pending or in-flight
		}
		if err := c.client.RPush(ctx, c.pendingKey, key).Err(); err != nil {
			return eris.Wrapf(err, "failed to push %q onto %q", key, c.stream)
		}
	}
	return nil
}

// minFetchBlock is the shortest block interval BLMOVE accepts through
// go-redis; anything smaller gets rounded up to it anyway, with a warning.
const minFetchBlock = time.Second

// Fetch blocks for up to timeout waiting for one key. Timeouts under one
// second are raised to one second, the floor the Redis client supports for
// blocking reads. An idle timeout returns ("", nil); the caller should poll
// again. A fetched key is owned exclusively by the caller until MarkDone or
// until the claim expires and is requeued.
func (c *Channel) Fetch(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout < minFetchBlock {
		timeout = minFetchBlock
	}
	key, err := c.client.BLMove(ctx, c.pendingKey, c.inflightKey, "LEFT", "RIGHT", timeout).Result()
	if eris.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "failed to fetch from %q", c.stream)
	}
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.client.HSet(ctx, c.claimsKey, key, now).Err(); err != nil {
		return "", eris.Wrapf(err, "failed to record claim for %q", key)
	}
	return key, nil
}

// MarkDone acknowledges a fetched key. It must be called exactly once per
// successful Fetch.
func (c *Channel) MarkDone(ctx context.Context, key string) error {
	pipe := c.client.TxPipeline()
	pipe.LRem(ctx, c.inflightKey, 1, key)
	pipe.HDel(ctx, c.claimsKey, key)
	pipe.SRem(ctx, c.membersKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to mark %q done on %q", key, c.stream)
	}
	return nil
}

// PendingCount returns the number of pending plus in-flight items.
func (c *Channel) PendingCount(ctx context.Context) (int64, error) {
	pending, err := c.client.LLen(ctx, c.pendingKey).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "failed to read pending count for %q", c.stream)
	}
	inflight, err := c.client.LLen(ctx, c.inflightKey).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "failed to read in-flight count for %q", c.stream)
	}
	return pending + inflight, nil
}

// WaitUntilDrained blocks until both pending and in-flight counts reach zero.
// This is the tick barrier used by the main loop.
func (c *Channel) WaitUntilDrained(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		count, err := c.PendingCount(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "cancelled while waiting for drain")
		case <-ticker.C:
		}
	}
}

// RequeueExpired moves in-flight items whose claim is older than maxAge (or
// that have no claim at all, which means the fetching worker died between
// fetch and claim) back onto the pending list. Returns the number requeued.
func (c *Channel) RequeueExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	inflight, err := c.client.LRange(ctx, c.inflightKey, 0, -1).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "failed to list in-flight items for %q", c.stream)
	}
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	requeued := 0
	for _, key := range inflight {
		claim, err := c.client.HGet(ctx, c.claimsKey, key).Result()
		if err != nil && !eris.Is(err, redis.Nil) {
			return requeued, eris.Wrapf(err, "failed to read claim for %q", key)
		}
		if claim != "" {
			claimedAt, convErr := strconv.ParseInt(claim, 10, 64)
			if convErr == nil && claimedAt > cutoff {
				continue
			}
		}
		pipe := c.client.TxPipeline()
		pipe.LRem(ctx, c.inflightKey, 1, key)
		pipe.HDel(ctx, c.claimsKey, key)
		pipe.RPush(ctx, c.pendingKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return requeued, eris.Wrapf(err, "failed to requeue %q", key)
		}
		c.log.Warn().Str("key", key).Msg("Requeued expired in-flight item")
		requeued++
	}
	return requeued, nil
}

// Reset clears the stream entirely. Admin use only.
func (c *Channel) Reset(ctx context.Context) error {
	err := c.client.Del(ctx, c.pendingKey, c.inflightKey, c.membersKey, c.claimsKey).Err()
	return eris.Wrapf(err, "failed to reset stream %q", c.stream)
}
