package storage

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// HistoryStorage holds per-tick room history snapshots and the upload queue
// consumed by the external archive uploader.
type HistoryStorage struct {
	Client *redis.Client
}

func NewHistoryStorage(client *redis.Client) HistoryStorage {
	return HistoryStorage{Client: client}
}

func (r *HistoryStorage) SaveHistory(ctx context.Context, room string, tick uint64, blob []byte) error {
	err := r.Client.Set(ctx, roomHistoryKey(room, tick), blob, 0).Err()
	return eris.Wrapf(err, "failed to save history for %q at tick %d", room, tick)
}

type historyChunk struct {
	Room     string            `json:"room"`
	BaseTick uint64            `json:"baseTick"`
	Ticks    map[uint64]string `json:"ticks"`
}

// UploadChunk gathers the accumulated per-tick history starting at baseTick
// and pushes it onto the upload queue. Per-tick entries are deleted once
// chunked.
func (r *HistoryStorage) UploadChunk(ctx context.Context, room string, baseTick uint64, chunkSize uint64) error {
	chunk := historyChunk{
		Room:     room,
		BaseTick: baseTick,
		Ticks:    map[uint64]string{},
	}
	keys := make([]string, 0, chunkSize)
	for tick := baseTick; tick < baseTick+chunkSize; tick++ {
		blob, err := r.Client.Get(ctx, roomHistoryKey(room, tick)).Result()
		if eris.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "failed to read history for %q at tick %d", room, tick)
		}
		chunk.Ticks[tick] = blob
		keys = append(keys, roomHistoryKey(room, tick))
	}
	if len(chunk.Ticks) == 0 {
		return nil
	}
	raw, err := json.Marshal(chunk)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal history chunk for %q", room)
	}
	pipe := r.Client.TxPipeline()
	pipe.RPush(ctx, historyUploadsKey(), raw)
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to enqueue history chunk for %q", room)
	}
	return nil
}

// PendingUploads returns the number of chunks awaiting upload.
func (r *HistoryStorage) PendingUploads(ctx context.Context) (int64, error) {
	count, err := r.Client.LLen(ctx, historyUploadsKey()).Result()
	if err != nil {
		return 0, eris.Wrap(err, "failed to read history upload queue length")
	}
	return count, nil
}
