package geoloc

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Generation hands out monotonically increasing request tickets. Starting a
// new ticket cancels and invalidates every earlier one, so only the latest
// request may ever act on its result.
type Generation struct {
	n      atomic.Uint64
	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewGeneration() *Generation {
	return &Generation{}
}

// Next invalidates the current ticket and returns a new one whose context is
// derived from parent.
func (g *Generation) Next(parent context.Context) *Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	return &Ticket{ID: g.n.Inc(), ctx: ctx, gen: g}
}

// Current is the id of the latest ticket, 0 before any.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// Invalidate drops the current ticket without issuing a usable one.
func (g *Generation) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.n.Inc()
}

// Ticket identifies one request.
type Ticket struct {
	ID  uint64
	ctx context.Context
	gen *Generation
}

// Context is cancelled once the ticket is superseded.
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Current reports whether no newer ticket has been issued.
func (t *Ticket) Current() bool {
	return t.gen.Current() == t.ID
}

// Do runs fn only while t is still the latest ticket and reports whether it
// ran. No new ticket can be issued while fn runs, so fn must not start a
// request itself.
func (t *Ticket) Do(fn func()) bool {
	t.gen.mu.Lock()
	defer t.gen.mu.Unlock()
	if t.gen.Current() != t.ID {
		return false
	}
	fn()
	return true
}
