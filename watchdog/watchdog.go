// Package watchdog tracks per-tenant execution health. Repeated failed runs
// flag the tenant for a cold start and, with a cooldown, alert operators.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/telemetry"
	"github.com/burrowgame/burrow/types"
)

const (
	// failureThreshold is the number of consecutive failed runs before the
	// tenant's next run is forced onto a cold sandbox.
	failureThreshold = 3
	// alertCooldown bounds operator alerts to one per tenant per window.
	alertCooldown = 10 * time.Minute
)

// Alerter receives operator alerts when a tenant crosses the failure
// threshold.
type Alerter interface {
	Alert(ctx context.Context, tenant string, failures int) error
}

type tenantHealth struct {
	consecutiveFailures int
	pendingColdStarts   int
	lastAlert           time.Time
}

// Watchdog is safe for concurrent use by runner workers.
type Watchdog struct {
	mu      sync.Mutex
	tenants map[string]*tenantHealth
	alerter Alerter
	log     zerolog.Logger
	now     func() time.Time
}

func New(alerter Alerter, log zerolog.Logger) *Watchdog {
	return &Watchdog{
		tenants: map[string]*tenantHealth{},
		alerter: alerter,
		log:     log,
		now:     time.Now,
	}
}

// Observe feeds one run's telemetry into the health model. A successful run
// resets the failure streak; each time the streak reaches the threshold,
// exactly one cold start is queued and at most one alert per cooldown
// window is sent.
func (w *Watchdog) Observe(payload types.RuntimeTelemetry) {
	w.mu.Lock()
	health := w.tenants[payload.Tenant]
	if health == nil {
		health = &tenantHealth{}
		w.tenants[payload.Tenant] = health
	}

	if !payload.Failed() {
		health.consecutiveFailures = 0
		w.mu.Unlock()
		return
	}

	health.consecutiveFailures++
	// Every full streak of threshold failures queues one more cold start.
	crossed := health.consecutiveFailures%failureThreshold == 0
	if crossed {
		health.pendingColdStarts++
	}
	alert := crossed && w.now().Sub(health.lastAlert) >= alertCooldown
	if alert {
		health.lastAlert = w.now()
	}
	failures := health.consecutiveFailures
	w.mu.Unlock()

	if !crossed {
		return
	}
	w.log.Warn().
		Str("tenant", payload.Tenant).
		Int("failures", failures).
		Uint64("tick", payload.Tick).
		Msg("tenant flagged for cold start")
	telemetry.EmitCount("watchdog.cold_starts", 1, []string{"tenant:" + payload.Tenant})
	if alert && w.alerter != nil {
		if err := w.alerter.Alert(context.Background(), payload.Tenant, failures); err != nil {
			w.log.Warn().Err(err).Str("tenant", payload.Tenant).Msg("failed to alert")
		}
	}
}

// ConsumeColdStart reports whether the tenant's next run must discard its
// warm sandbox. Each queued cold start is consumed exactly once.
func (w *Watchdog) ConsumeColdStart(tenant string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	health := w.tenants[tenant]
	if health == nil || health.pendingColdStarts == 0 {
		return false
	}
	health.pendingColdStarts--
	return true
}

// Failures returns the tenant's current consecutive failure streak.
func (w *Watchdog) Failures(tenant string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if health := w.tenants[tenant]; health != nil {
		return health.consecutiveFailures
	}
	return 0
}
