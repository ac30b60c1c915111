package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/burrowgame/burrow/config"
	"github.com/burrowgame/burrow/global"
	"github.com/burrowgame/burrow/pubsub"
	"github.com/burrowgame/burrow/queue"
	"github.com/burrowgame/burrow/room"
	"github.com/burrowgame/burrow/runtime"
	"github.com/burrowgame/burrow/runtime/bundle"
	"github.com/burrowgame/burrow/server"
	"github.com/burrowgame/burrow/storage"
	"github.com/burrowgame/burrow/telemetry"
	"github.com/burrowgame/burrow/tickloop"
	"github.com/burrowgame/burrow/watchdog"
	"github.com/burrowgame/burrow/worker"
)

const interruptBuffer = 500 * time.Millisecond

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cfg := config.GetConfig()

	if cfg.StatsdAddress != "" {
		if err := telemetry.Init(cfg.StatsdAddress, []string{"namespace:" + cfg.Namespace}); err != nil {
			log.Warn().Err(err).Msg("statsd disabled")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
	})
	store := storage.NewStorageWithClient(client, cfg.Namespace)
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close storage")
		}
	}()

	users := queue.Open(client, queue.StreamUsers)
	rooms := queue.Open(client, queue.StreamRooms)
	sink := pubsub.NewSink(client, log.With().Str("component", "pubsub").Logger())

	dog := watchdog.New(sink, log.With().Str("component", "watchdog").Logger())
	pool := runtime.NewPool(runtime.Limits{
		DefaultCPULimit: cfg.DefaultCPULimit,
		InterruptBuffer: interruptBuffer,
		HeapLimitBytes:  cfg.HeapLimitMB << 20,
	}, log.With().Str("component", "sandbox-pool").Logger())
	coordinator := runtime.NewCoordinator(&store, pool, bundle.NewCache(), sink, dog, runtime.Config{
		DefaultCPULimit: cfg.DefaultCPULimit,
		CPUBucketCap:    cfg.CPUBucketCap,
	}, log.With().Str("component", "coordinator").Logger())

	processor := room.NewProcessor(&store, sink, cfg.HistoryChunkSize)

	loop := tickloop.New(&store, users, rooms, sink, []tickloop.GlobalProcessor{
		global.NewMarket(&store, log.With().Str("component", "market").Logger()),
		global.NewPowerCreeps(&store, log.With().Str("component", "power-creeps").Logger()),
		global.NewTransfers(&store, log.With().Str("component", "transfers").Logger()),
	}, cfg.MinTickDuration, log.With().Str("component", "tickloop").Logger())

	admin := server.New(loop, []*queue.Channel{users, rooms}, &store,
		log.With().Str("component", "admin").Logger())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	for i := 0; i < cfg.RunnerWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker.RunnerLoop(ctx, users, coordinator,
				log.With().Str("component", "runner").Int("worker", id).Logger())
		}(i)
	}
	for i := 0; i < cfg.ProcessorWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker.ProcessorLoop(ctx, rooms, processor,
				log.With().Str("component", "processor").Int("worker", id).Logger())
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := admin.Serve(cfg.AdminPort); err != nil {
			log.Error().Err(err).Msg("admin server failed")
		}
	}()

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	handleShutdown(cancel, admin)

	if err := <-loopDone; err != nil {
		log.Error().Err(err).Msg("tick loop failed")
	}
	wg.Wait()
	log.Info().Msg("shutdown complete")
}

// handleShutdown blocks until SIGINT or SIGTERM, then cancels the run
// context and stops the admin listener.
func handleShutdown(cancel context.CancelFunc, admin *server.Server) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()
	if err := admin.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("admin server shutdown failed")
	}
}
