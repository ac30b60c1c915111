// Package runtime executes tenant code bundles in pooled, resource-bounded
// JavaScript sandboxes and persists each run's side effects.
package runtime

// ExecutionContext describes one tenant's run. Built fresh by the
// coordinator each tick and consumed once by a sandbox; never mutated after
// creation.
type ExecutionContext struct {
	TenantID          string
	CodeHash          string
	CPULimit          float64 // ms
	CPUBucket         float64 // ms, banked from previous ticks
	Tick              uint64
	Memory            string
	MemorySegments    map[string]string
	InterShardSegment string
	ConsoleEval       string // optional REPL expression evaluated after the main run
	ForceColdStart    bool
}

// Metrics captures the resource outcome of one execution. Resource
// exhaustion is reported here, not as a distinct error type, so telemetry
// and watchdog handling stay uniform.
type Metrics struct {
	TimedOut    bool
	ScriptError bool
	HeapUsed    uint64
	HeapLimit   uint64
}

// RawIntent is an intent as recorded by the host callbacks during a run,
// before envelope conversion.
type RawIntent struct {
	ObjectID string
	Name     string
	Args     []map[string]any
}

// RawNotification is a notification recorded during a run; the coordinator
// stamps the tenant on delivery.
type RawNotification struct {
	Message       string
	GroupInterval int
}

// ExecutionResult is produced exactly once per execution and never mutated
// afterwards.
type ExecutionResult struct {
	ConsoleLog     []string
	ConsoleResults []string
	Error          string // empty when the run completed cleanly

	GlobalIntents []RawIntent
	RoomIntents   map[string][]RawIntent
	Notifications []RawNotification

	Memory            string
	MemorySegments    map[string]string
	InterShardSegment string

	CPUUsed float64 // ms
	Metrics Metrics
}
