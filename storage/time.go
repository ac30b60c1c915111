package storage

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// TimeStorage owns the global clock. Only the main loop increments it.
type TimeStorage struct {
	Client *redis.Client
}

func NewTimeStorage(client *redis.Client) TimeStorage {
	return TimeStorage{Client: client}
}

func (r *TimeStorage) GameTime(ctx context.Context) (uint64, error) {
	raw, err := r.Client.Get(ctx, gameTimeKey()).Result()
	if eris.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "failed to read game time")
	}
	tick, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, eris.Wrap(err, "corrupt game time")
	}
	return tick, nil
}

// IncrementGameTime advances the clock by one and returns the new value.
func (r *TimeStorage) IncrementGameTime(ctx context.Context) (uint64, error) {
	tick, err := r.Client.Incr(ctx, gameTimeKey()).Result()
	if err != nil {
		return 0, eris.Wrap(err, "failed to increment game time")
	}
	return uint64(tick), nil
}
