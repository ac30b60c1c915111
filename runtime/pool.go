package runtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// Pool keeps warm sandboxes so compiled bundles are reused across ticks.
// Rent never blocks; when the free list is empty a cold sandbox is built
// on the spot.
type Pool struct {
	mu     sync.Mutex
	idle   []*Sandbox
	limits Limits
	log    zerolog.Logger
}

func NewPool(limits Limits, log zerolog.Logger) *Pool {
	return &Pool{limits: limits, log: log}
}

// Limits returns the execution limits every sandbox from this pool runs under.
func (p *Pool) Limits() Limits { return p.limits }

func (p *Pool) Rent() *Sandbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		sb := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return sb
	}
	sb := newSandbox()
	p.log.Debug().Str("sandbox", sb.ID()).Msg("created cold sandbox")
	return sb
}

// Cold builds a brand-new sandbox, bypassing the free list. Warm sandboxes
// carry compiled bundles, which is exactly what a forced cold start must not
// reuse.
func (p *Pool) Cold() *Sandbox {
	sb := newSandbox()
	p.log.Debug().Str("sandbox", sb.ID()).Msg("created cold sandbox")
	return sb
}

func (p *Pool) Return(sb *Sandbox) {
	if sb == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, sb)
}

// Invalidate discards a sandbox along with its program cache. Used after a
// host-level failure or a forced cold start.
func (p *Pool) Invalidate(sb *Sandbox) {
	if sb == nil {
		return
	}
	p.log.Debug().Str("sandbox", sb.ID()).Msg("discarded sandbox")
}

func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
