package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/burrowgame/burrow/types"
)

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Alert(_ context.Context, tenant string, _ int) error {
	f.alerts = append(f.alerts, tenant)
	return nil
}

func failedRun(tenant string) types.RuntimeTelemetry {
	return types.RuntimeTelemetry{Tenant: tenant, TimedOut: true}
}

func cleanRun(tenant string) types.RuntimeTelemetry {
	return types.RuntimeTelemetry{Tenant: tenant}
}

func TestThresholdQueuesSingleColdStart(t *testing.T) {
	alerter := &fakeAlerter{}
	w := New(alerter, zerolog.Nop())

	w.Observe(failedRun("alice"))
	w.Observe(failedRun("alice"))
	assert.Assert(t, !w.ConsumeColdStart("alice"))

	w.Observe(failedRun("alice"))
	assert.Assert(t, w.ConsumeColdStart("alice"))
	// Consumed exactly once.
	assert.Assert(t, !w.ConsumeColdStart("alice"))
	assert.Equal(t, w.Failures("alice"), 3)
}

func TestSuccessResetsStreak(t *testing.T) {
	w := New(nil, zerolog.Nop())

	w.Observe(failedRun("alice"))
	w.Observe(failedRun("alice"))
	w.Observe(cleanRun("alice"))
	w.Observe(failedRun("alice"))
	assert.Equal(t, w.Failures("alice"), 1)
	assert.Assert(t, !w.ConsumeColdStart("alice"))
}

func TestContinuedFailuresQueueAnotherColdStart(t *testing.T) {
	w := New(nil, zerolog.Nop())

	for i := 0; i < 6; i++ {
		w.Observe(failedRun("alice"))
	}
	assert.Assert(t, w.ConsumeColdStart("alice"))
	assert.Assert(t, w.ConsumeColdStart("alice"))
	assert.Assert(t, !w.ConsumeColdStart("alice"))
}

func TestAlertCooldown(t *testing.T) {
	alerter := &fakeAlerter{}
	w := New(alerter, zerolog.Nop())
	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		w.Observe(failedRun("alice"))
	}
	// Two threshold crossings inside one window, one alert.
	assert.Equal(t, len(alerter.alerts), 1)

	now = now.Add(alertCooldown)
	for i := 0; i < 3; i++ {
		w.Observe(failedRun("alice"))
	}
	assert.Equal(t, len(alerter.alerts), 2)
}

func TestTenantsTrackedIndependently(t *testing.T) {
	w := New(nil, zerolog.Nop())

	for i := 0; i < 3; i++ {
		w.Observe(failedRun("alice"))
	}
	w.Observe(failedRun("bob"))

	assert.Assert(t, w.ConsumeColdStart("alice"))
	assert.Assert(t, !w.ConsumeColdStart("bob"))
}
