// Package pubsub fans run output and loop events out to subscribers over
// redis pub/sub. Channels are fire-and-forget; durable state goes through
// the storage package instead.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/types"
)

const (
	channelTelemetry = "burrow:telemetry"
	channelAlerts    = "burrow:alerts"
	channelTickDone  = "burrow:tick-done"
)

// tickDoneMinInterval throttles the rooms-done broadcast so a burst of fast
// ticks does not flood slow subscribers.
const tickDoneMinInterval = 500 * time.Millisecond

func consoleChannel(tenant string) string {
	return "burrow:console:" + tenant
}

func notifyChannel(tenant string) string {
	return "burrow:notify:" + tenant
}

type consoleMessage struct {
	Tenant  string   `json:"user"`
	Log     []string `json:"log,omitempty"`
	Results []string `json:"results,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type alertMessage struct {
	Tenant   string `json:"user"`
	Failures int    `json:"failures"`
	Message  string `json:"message"`
}

type tickDoneMessage struct {
	Tick uint64 `json:"tick"`
}

// Sink publishes to redis pub/sub channels. Notifications with a group
// interval are deduplicated in-process: a repeat of the same message inside
// its interval is dropped.
type Sink struct {
	client *redis.Client
	log    zerolog.Logger

	mu           sync.Mutex
	lastNotified map[string]time.Time
	lastTickDone time.Time
	now          func() time.Time
}

func NewSink(client *redis.Client, log zerolog.Logger) *Sink {
	return &Sink{
		client:       client,
		log:          log,
		lastNotified: map[string]time.Time{},
		now:          time.Now,
	}
}

func (s *Sink) PublishRuntimeTelemetry(ctx context.Context, payload types.RuntimeTelemetry) error {
	return s.publish(ctx, channelTelemetry, payload)
}

// ConsoleOutput delivers one run's console batch to the tenant's channel.
// Empty batches with no error are skipped.
func (s *Sink) ConsoleOutput(ctx context.Context, tenant string, lines, results []string, errText string) error {
	if len(lines) == 0 && len(results) == 0 && errText == "" {
		return nil
	}
	return s.publish(ctx, consoleChannel(tenant), consoleMessage{
		Tenant:  tenant,
		Log:     lines,
		Results: results,
		Error:   errText,
	})
}

func (s *Sink) Notify(ctx context.Context, notification types.Notification) error {
	if notification.GroupInterval > 0 && s.suppressed(notification) {
		return nil
	}
	return s.publish(ctx, notifyChannel(notification.Tenant), notification)
}

// Alert satisfies the watchdog's alerter contract.
func (s *Sink) Alert(ctx context.Context, tenant string, failures int) error {
	return s.publish(ctx, channelAlerts, alertMessage{
		Tenant:   tenant,
		Failures: failures,
		Message:  fmt.Sprintf("tenant %s failed %d consecutive runs", tenant, failures),
	})
}

// PublishTickDone broadcasts that all rooms for the tick have been
// committed. Broadcasts closer together than the throttle window are
// dropped; subscribers poll game time anyway.
func (s *Sink) PublishTickDone(ctx context.Context, tick uint64) error {
	s.mu.Lock()
	if s.now().Sub(s.lastTickDone) < tickDoneMinInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastTickDone = s.now()
	s.mu.Unlock()
	return s.publish(ctx, channelTickDone, tickDoneMessage{Tick: tick})
}

func (s *Sink) suppressed(notification types.Notification) bool {
	key := notification.Tenant + "\x00" + notification.Message
	interval := time.Duration(notification.GroupInterval) * time.Minute
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastNotified[key]; ok && s.now().Sub(last) < interval {
		return true
	}
	s.lastNotified[key] = s.now()
	return false
}

func (s *Sink) publish(ctx context.Context, channel string, message any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal message for %q", channel)
	}
	if err := s.client.Publish(ctx, channel, raw).Err(); err != nil {
		return eris.Wrapf(err, "failed to publish to %q", channel)
	}
	return nil
}
