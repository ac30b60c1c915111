package runtime

import (
	"context"
	"time"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/burrowgame/burrow/runtime/bundle"
)

// Limits bounds a single execution. The interrupt buffer is the grace
// period past the CPU budget before the VM is forcibly interrupted, so
// runs that finish right at the budget still report their own timing.
type Limits struct {
	DefaultCPULimit float64 // ms, floor for the effective budget
	InterruptBuffer time.Duration
	HeapLimitBytes  uint64
}

const errCPULimitReached = "script execution has been terminated: CPU limit reached"

// bootstrapProg wires the host callback table into the globals tenant code
// sees. A fresh VM runs this before the bundle, so nothing survives from a
// previous tenant.
var bootstrapProg = goja.MustCompile("<bootstrap>", `
var console = {
	log: function () {
		__hostLog(Array.prototype.slice.call(arguments).join(" "));
	}
};
var Intents = {
	push: function (room, objectId, name, args) {
		__hostIntent(room, objectId, name, JSON.stringify(args === undefined ? [] : args));
	},
	pushGlobal: function (name, args) {
		__hostGlobalIntent(name, JSON.stringify(args === undefined ? [] : args));
	}
};
var Notify = function (message, groupInterval) {
	__hostNotify(String(message), groupInterval === undefined ? 0 : (groupInterval | 0));
};
var Memory = JSON.parse(__memoryBlob === "" ? "{}" : __memoryBlob);
var RawMemory = {
	segments: JSON.parse(__segmentsBlob === "" ? "{}" : __segmentsBlob),
	interShardSegment: __interShardBlob
};
`, true)

var serializeMemoryProg = goja.MustCompile("<serialize>", `
JSON.stringify({
	memory: JSON.stringify(Memory),
	segments: RawMemory.segments,
	interShard: String(RawMemory.interShardSegment)
})
`, true)

type serializedState struct {
	Memory     string            `json:"memory"`
	Segments   map[string]string `json:"segments"`
	InterShard string            `json:"interShard"`
}

// Sandbox executes tenant bundles. A sandbox is stateless across
// executions except for its compiled-program cache: every Execute call
// builds a fresh VM, so globals never leak between tenants, while the
// bytecode for a given bundle hash is compiled at most once per sandbox
// lifetime. Not safe for concurrent use; the pool hands each sandbox to
// one worker at a time.
type Sandbox struct {
	id        string
	programs  map[string]*goja.Program
	createdAt time.Time
}

func newSandbox() *Sandbox {
	return &Sandbox{
		id:        uuid.NewString(),
		programs:  map[string]*goja.Program{},
		createdAt: time.Now(),
	}
}

// ID identifies the sandbox in logs.
func (s *Sandbox) ID() string { return s.id }

func (s *Sandbox) compile(snap *bundle.Snapshot) (*goja.Program, error) {
	if prog, ok := s.programs[snap.Hash]; ok {
		return prog, nil
	}
	// Tenant code is not forced into strict mode.
	prog, err := goja.Compile(snap.Hash, snap.Entry, false)
	if err != nil {
		return nil, eris.Wrap(err, "compile bundle")
	}
	s.programs[snap.Hash] = prog
	return prog, nil
}

// Execute runs one tenant bundle under the sandbox limits. Tenant-level
// failures (script exception, CPU interrupt, heap ceiling) are reported in
// the result; a returned error means the sandbox itself misbehaved and must
// be invalidated by the caller. Cancelling ctx interrupts the script and
// surfaces as an error.
func (s *Sandbox) Execute(ctx context.Context, execCtx ExecutionContext, snap *bundle.Snapshot, limits Limits) (*ExecutionResult, error) {
	prog, err := s.compile(snap)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(2048)
	rec := newRecorder()
	if err := bindHost(vm, rec, execCtx); err != nil {
		return nil, err
	}
	if _, err := vm.RunProgram(bootstrapProg); err != nil {
		return nil, eris.Wrap(err, "sandbox bootstrap")
	}

	budget := execCtx.CPULimit
	if budget < limits.DefaultCPULimit {
		budget = limits.DefaultCPULimit
	}
	deadline := time.Duration(budget)*time.Millisecond + limits.InterruptBuffer
	timer := time.AfterFunc(deadline, func() {
		vm.Interrupt(errCPULimitReached)
	})
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-watchDone:
		}
	}()

	res := &ExecutionResult{
		Memory:            execCtx.Memory,
		MemorySegments:    execCtx.MemorySegments,
		InterShardSegment: execCtx.InterShardSegment,
		Metrics:           Metrics{HeapLimit: limits.HeapLimitBytes},
	}

	start := time.Now()
	_, runErr := vm.RunProgram(prog)
	res.CPUUsed = float64(time.Since(start)) / float64(time.Millisecond)
	timer.Stop()
	close(watchDone)
	vm.ClearInterrupt()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "execution cancelled")
	}
	if runErr != nil {
		switch runErr.(type) {
		case *goja.InterruptedError:
			res.Metrics.TimedOut = true
			res.Error = errCPULimitReached
		case *goja.Exception, *goja.StackOverflowError:
			res.Metrics.ScriptError = true
			res.Error = runErr.Error()
		default:
			return nil, eris.Wrap(runErr, "sandbox run")
		}
	}

	if execCtx.ConsoleEval != "" && !res.Metrics.TimedOut {
		if val, evalErr := vm.RunString(execCtx.ConsoleEval); evalErr != nil {
			rec.Result(evalErr.Error())
		} else if val != nil {
			rec.Result(val.String())
		}
	}

	s.captureState(vm, res)
	rec.drain(res)
	return res, nil
}

// captureState re-serializes Memory and RawMemory from the VM. On a
// serialization failure (circular Memory, interrupted VM state) the
// pre-run state already seeded into res is kept.
func (s *Sandbox) captureState(vm *goja.Runtime, res *ExecutionResult) {
	val, err := vm.RunProgram(serializeMemoryProg)
	if err != nil || val == nil {
		return
	}
	var state serializedState
	if err := jsonUnmarshal(val.String(), &state); err != nil {
		return
	}

	heapUsed := uint64(len(state.Memory)) + uint64(len(state.InterShard))
	for _, seg := range state.Segments {
		heapUsed += uint64(len(seg))
	}
	res.Metrics.HeapUsed = heapUsed
	if res.Metrics.HeapLimit > 0 && heapUsed > res.Metrics.HeapLimit {
		res.Metrics.ScriptError = true
		res.Error = "memory limit exceeded"
		return
	}

	res.Memory = state.Memory
	res.MemorySegments = state.Segments
	res.InterShardSegment = state.InterShard
}

func bindHost(vm *goja.Runtime, rec *recorder, execCtx ExecutionContext) error {
	bindings := map[string]any{
		"__hostLog": func(line string) { rec.Log(line) },
		"__hostNotify": func(message string, groupInterval int) {
			rec.Notify(message, groupInterval)
		},
		"__hostIntent": func(room, objectID, name, argsJSON string) {
			rec.RoomIntent(room, objectID, name, argsJSON)
		},
		"__hostGlobalIntent": func(name, argsJSON string) {
			rec.GlobalIntent(name, argsJSON)
		},
		"__memoryBlob":     execCtx.Memory,
		"__segmentsBlob":   marshalSegments(execCtx.MemorySegments),
		"__interShardBlob": execCtx.InterShardSegment,
	}
	for name, value := range bindings {
		if err := vm.Set(name, value); err != nil {
			return eris.Wrapf(err, "bind %s", name)
		}
	}
	return nil
}

func marshalSegments(segments map[string]string) string {
	if len(segments) == 0 {
		return ""
	}
	blob, err := json.Marshal(segments)
	if err != nil {
		return ""
	}
	return string(blob)
}

func jsonUnmarshal(blob string, v any) error {
	return json.Unmarshal([]byte(blob), v)
}
