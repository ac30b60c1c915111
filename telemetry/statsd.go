// Package telemetry emits tick-loop and runtime metrics over statsd. Callers
// never see the underlying client; swapping the metrics backend stays a
// one-file change.
package telemetry

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Until Init runs, everything lands in a no-op client, so tests and tools
// that never configure statsd pay nothing.
var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitStageStat records how long one tick stage took, tagged by stage name.
func EmitStageStat(start time.Time, stage string) {
	if err := Client().Timing("tick", time.Since(start), []string{"stage:" + stage}, 1); err != nil {
		log.Logger.Warn().Err(err).Str("stage", stage).Msg("failed to emit stage timing")
	}
}

func EmitCount(name string, value int64, tags []string) {
	if err := Client().Count(name, value, tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit count")
	}
}

func EmitGauge(name string, value float64, tags []string) {
	if err := Client().Gauge(name, value, tags, 1); err != nil {
		log.Logger.Warn().Err(err).Str("metric", name).Msg("failed to emit gauge")
	}
}

// Init points the package at a real statsd endpoint. Metric names are
// prefixed with the service namespace.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("statsd address must not be empty")
	}
	opts := []ddstatsd.Option{ddstatsd.WithNamespace("burrow")}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	c, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to build statsd client")
	}
	client = c
	return nil
}
