package runtime

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/runtime/bundle"
	"github.com/burrowgame/burrow/telemetry"
	"github.com/burrowgame/burrow/types"
)

// StateStore is the slice of storage the coordinator needs to run one
// tenant.
type StateStore interface {
	ActiveModules(ctx context.Context, tenant string) (map[string]string, string, error)
	GetMemory(ctx context.Context, tenant string) (string, error)
	SetMemory(ctx context.Context, tenant, memory string) error
	GetMemorySegments(ctx context.Context, tenant string) (map[string]string, error)
	SetMemorySegments(ctx context.Context, tenant string, segments map[string]string) error
	GetInterShardSegment(ctx context.Context, tenant string) (string, error)
	SetInterShardSegment(ctx context.Context, tenant, segment string) error
	GetCPUBucket(ctx context.Context, tenant string) (float64, error)
	SetCPUBucket(ctx context.Context, tenant string, bucket float64) error
	GetCPULimit(ctx context.Context, tenant string) (float64, error)
	AppendIntents(ctx context.Context, room string, envelopes []types.IntentEnvelope) error
	AppendGlobalIntents(ctx context.Context, envelopes []types.IntentEnvelope) error
	GameTime(ctx context.Context) (uint64, error)
}

// Sink publishes run output to subscribers (telemetry channel, tenant
// console, notification mailbox).
type Sink interface {
	PublishRuntimeTelemetry(ctx context.Context, payload types.RuntimeTelemetry) error
	ConsoleOutput(ctx context.Context, tenant string, lines, results []string, errText string) error
	Notify(ctx context.Context, notification types.Notification) error
}

// Watchdog observes per-run telemetry and answers whether the next run for
// a tenant must start on a cold sandbox.
type Watchdog interface {
	Observe(payload types.RuntimeTelemetry)
	ConsumeColdStart(tenant string) bool
}

type Config struct {
	DefaultCPULimit float64 // ms
	CPUBucketCap    float64 // ms
}

// Coordinator drives one tenant execution end to end: resolve code, rent a
// sandbox, run, then persist memory, intents, bucket, and telemetry.
type Coordinator struct {
	store    StateStore
	pool     *Pool
	cache    *bundle.Cache
	sink     Sink
	watchdog Watchdog
	cfg      Config
	log      zerolog.Logger
}

func NewCoordinator(
	store StateStore, pool *Pool, cache *bundle.Cache, sink Sink, watchdog Watchdog,
	cfg Config, log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		store:    store,
		pool:     pool,
		cache:    cache,
		sink:     sink,
		watchdog: watchdog,
		cfg:      cfg,
		log:      log,
	}
}

// RunTenant executes the tenant's active bundle for the current tick. A
// tenant with no code is a no-op. Script failures are persisted and
// reported like any other run; only host-level failures return an error,
// after the sandbox has been invalidated and the tenant console told.
func (c *Coordinator) RunTenant(ctx context.Context, tenant string) error {
	modules, branch, err := c.store.ActiveModules(ctx, tenant)
	if err != nil {
		return err
	}
	if len(modules) == 0 {
		c.log.Debug().Str("tenant", tenant).Msg("no active code")
		return nil
	}

	execCtx, snap, err := c.buildContext(ctx, tenant, modules)
	if err != nil {
		return err
	}
	c.log.Debug().
		Str("tenant", tenant).
		Str("branch", branch).
		Str("bundle", snap.Hash).
		Bool("coldStart", execCtx.ForceColdStart).
		Msg("running tenant")

	// A flagged tenant runs on a brand-new sandbox so no bytecode survives
	// from the failing streak; the warm pool stays untouched.
	var sb *Sandbox
	if execCtx.ForceColdStart {
		sb = c.pool.Cold()
	} else {
		sb = c.pool.Rent()
	}
	res, err := sb.Execute(ctx, execCtx, snap, c.pool.Limits())
	if err != nil {
		c.pool.Invalidate(sb)
		telemetry.EmitCount("runtime.host_failure", 1, []string{"tenant:" + tenant})
		if sinkErr := c.sink.ConsoleOutput(ctx, tenant, nil, nil, "execution failed: internal runtime error"); sinkErr != nil {
			c.log.Warn().Err(sinkErr).Str("tenant", tenant).Msg("failed to surface host failure")
		}
		return eris.Wrapf(err, "tenant %q execution", tenant)
	}
	if execCtx.ForceColdStart {
		c.pool.Invalidate(sb)
	} else {
		c.pool.Return(sb)
	}

	return c.persist(ctx, execCtx, res)
}

func (c *Coordinator) buildContext(
	ctx context.Context, tenant string, modules map[string]string,
) (ExecutionContext, *bundle.Snapshot, error) {
	hash := bundle.HashModules(modules)
	snap := c.cache.GetOrAdd(hash, modules)

	memory, err := c.store.GetMemory(ctx, tenant)
	if err != nil {
		return ExecutionContext{}, nil, err
	}
	segments, err := c.store.GetMemorySegments(ctx, tenant)
	if err != nil {
		return ExecutionContext{}, nil, err
	}
	interShard, err := c.store.GetInterShardSegment(ctx, tenant)
	if err != nil {
		return ExecutionContext{}, nil, err
	}
	bucket, err := c.store.GetCPUBucket(ctx, tenant)
	if err != nil {
		return ExecutionContext{}, nil, err
	}
	limit, err := c.store.GetCPULimit(ctx, tenant)
	if err != nil {
		return ExecutionContext{}, nil, err
	}
	if limit <= 0 {
		limit = c.cfg.DefaultCPULimit
	}
	tick, err := c.store.GameTime(ctx)
	if err != nil {
		return ExecutionContext{}, nil, err
	}

	return ExecutionContext{
		TenantID:          tenant,
		CodeHash:          hash,
		CPULimit:          limit,
		CPUBucket:         bucket,
		Tick:              tick,
		Memory:            memory,
		MemorySegments:    segments,
		InterShardSegment: interShard,
		ForceColdStart:    c.watchdog.ConsumeColdStart(tenant),
	}, snap, nil
}

// persist writes everything a finished run produced. Storage failures are
// hard errors; sink failures are logged and skipped so a flaky subscriber
// cannot stall the tick.
func (c *Coordinator) persist(ctx context.Context, execCtx ExecutionContext, res *ExecutionResult) error {
	tenant := execCtx.TenantID

	bucket := clampBucket(execCtx.CPUBucket-res.CPUUsed+execCtx.CPULimit, c.cfg.CPUBucketCap)
	if err := c.store.SetCPUBucket(ctx, tenant, bucket); err != nil {
		return err
	}
	if err := c.store.SetMemory(ctx, tenant, res.Memory); err != nil {
		return err
	}
	if err := c.store.SetMemorySegments(ctx, tenant, res.MemorySegments); err != nil {
		return err
	}
	if res.InterShardSegment != execCtx.InterShardSegment {
		if err := c.store.SetInterShardSegment(ctx, tenant, res.InterShardSegment); err != nil {
			return err
		}
	}

	for room, intents := range res.RoomIntents {
		if err := c.store.AppendIntents(ctx, room, toEnvelopes(tenant, intents)); err != nil {
			return err
		}
	}
	if err := c.store.AppendGlobalIntents(ctx, toEnvelopes(tenant, res.GlobalIntents)); err != nil {
		return err
	}

	if err := c.sink.ConsoleOutput(ctx, tenant, res.ConsoleLog, res.ConsoleResults, res.Error); err != nil {
		c.log.Warn().Err(err).Str("tenant", tenant).Msg("failed to publish console output")
	}
	for _, n := range res.Notifications {
		notification := types.Notification{
			Tenant:        tenant,
			Message:       n.Message,
			GroupInterval: n.GroupInterval,
		}
		if err := c.sink.Notify(ctx, notification); err != nil {
			c.log.Warn().Err(err).Str("tenant", tenant).Msg("failed to publish notification")
		}
	}

	payload := types.RuntimeTelemetry{
		Tenant:      tenant,
		Tick:        execCtx.Tick,
		CPUUsed:     res.CPUUsed,
		CPULimit:    execCtx.CPULimit,
		CPUBucket:   bucket,
		TimedOut:    res.Metrics.TimedOut,
		ScriptError: res.Metrics.ScriptError,
		HeapUsed:    res.Metrics.HeapUsed,
		HeapLimit:   res.Metrics.HeapLimit,
	}
	if err := c.sink.PublishRuntimeTelemetry(ctx, payload); err != nil {
		c.log.Warn().Err(err).Str("tenant", tenant).Msg("failed to publish runtime telemetry")
	}
	c.watchdog.Observe(payload)
	telemetry.EmitGauge("runtime.cpu_used", res.CPUUsed, []string{"tenant:" + tenant})
	if payload.Failed() {
		telemetry.EmitCount("runtime.failed_runs", 1, []string{"tenant:" + tenant})
	}
	return nil
}

func toEnvelopes(tenant string, intents []RawIntent) []types.IntentEnvelope {
	if len(intents) == 0 {
		return nil
	}
	envelopes := make([]types.IntentEnvelope, 0, len(intents))
	for _, in := range intents {
		envelopes = append(envelopes, types.IntentEnvelope{
			Tenant:   tenant,
			ObjectID: in.ObjectID,
			Name:     in.Name,
			Args:     in.Args,
		})
	}
	return envelopes
}

func clampBucket(value, capacity float64) float64 {
	if value < 0 {
		return 0
	}
	if value > capacity {
		return capacity
	}
	return value
}
