// Package storage implements the persistent state store contract on redis.
// Each concern gets its own storage struct sharing one client; Storage embeds
// them all.
package storage

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type Storage struct {
	Namespace string
	Client    *redis.Client
	Log       zerolog.Logger
	UserStorage
	RoomStorage
	TimeStorage
	HistoryStorage
	MarketStorage
	PowerStorage
}

type Options = redis.Options

func NewStorage(options Options, namespace string) Storage {
	client := redis.NewClient(&options)
	return NewStorageWithClient(client, namespace)
}

// NewStorageWithClient wraps an existing client; used by tests that share a
// miniredis instance between the store and the queues.
func NewStorageWithClient(client *redis.Client, namespace string) Storage {
	return Storage{
		Namespace:      namespace,
		Client:         client,
		Log:            zerolog.New(os.Stdout),
		UserStorage:    NewUserStorage(client),
		RoomStorage:    NewRoomStorage(client),
		TimeStorage:    NewTimeStorage(client),
		HistoryStorage: NewHistoryStorage(client),
		MarketStorage:  NewMarketStorage(client),
		PowerStorage:   NewPowerStorage(client),
	}
}

func (s *Storage) Close() error {
	if err := s.Client.Close(); err != nil {
		return eris.Wrap(err, "")
	}
	return nil
}

// ResetAll wipes the entire data set. Admin use only.
func (s *Storage) ResetAll(ctx context.Context) error {
	return eris.Wrap(s.Client.FlushDB(ctx).Err(), "failed to flush data set")
}
