package guestrt

import (
	"context"
	"log"
	"sync"
)

// Predictor warms a replacement guest Instance in the background once
// a worker's live-instance count reaches the soft cap, so a caller
// hitting the hard cap can swap it in immediately instead of blocking
// on a cold compile+instantiate.
type Predictor struct {
	compile func(ctx context.Context) (*Instance, error)

	mu          sync.Mutex
	pending     bool
	replacement *Instance
}

// NewPredictor constructs a Predictor that builds replacements via
// compile.
func NewPredictor(compile func(ctx context.Context) (*Instance, error)) *Predictor {
	return &Predictor{compile: compile}
}

// Warm starts compiling a replacement in the background unless one is
// already in flight or ready. Safe to call repeatedly (e.g. once per
// soft-cap crossing).
func (p *Predictor) Warm(ctx context.Context) {
	p.mu.Lock()
	if p.pending || p.replacement != nil {
		p.mu.Unlock()
		return
	}
	p.pending = true
	p.mu.Unlock()

	go func() {
		inst, err := p.compile(ctx)
		p.mu.Lock()
		defer p.mu.Unlock()
		p.pending = false
		if err != nil {
			log.Printf("guestrt: predictor failed to warm a replacement instance: %v", err)
			return
		}
		p.replacement = inst
	}()
}

// TakeReplacement returns and clears the warmed replacement, if ready.
// A caller at the hard cap uses this to swap in immediately; if none
// is ready yet it falls back to a synchronous compile.
func (p *Predictor) TakeReplacement() (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.replacement == nil {
		return nil, false
	}
	inst := p.replacement
	p.replacement = nil
	return inst, true
}
