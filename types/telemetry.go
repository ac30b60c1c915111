package types

// RuntimeTelemetry is published after every tenant execution and consumed by
// the watchdog and by the telemetry sink.
type RuntimeTelemetry struct {
	Tenant      string  `json:"user"`
	Tick        uint64  `json:"tick"`
	CPUUsed     float64 `json:"cpuUsed"`
	CPULimit    float64 `json:"cpuLimit"`
	CPUBucket   float64 `json:"cpuBucket"`
	TimedOut    bool    `json:"timedOut"`
	ScriptError bool    `json:"scriptError"`
	HeapUsed    uint64  `json:"heapUsed"`
	HeapLimit   uint64  `json:"heapLimit"`
}

// Failed reports whether this execution counts against the tenant's
// consecutive-failure streak.
func (t RuntimeTelemetry) Failed() bool {
	return t.TimedOut || t.ScriptError
}

// Notification is a free-form user-facing message. GroupInterval is a
// client-side coalescing hint in minutes; zero means deliver immediately.
type Notification struct {
	Tenant        string `json:"user"`
	Message       string `json:"message"`
	GroupInterval int    `json:"groupInterval,omitempty"`
}
