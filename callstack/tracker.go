package callstack

import (
	"context"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/internal/obslog"
)

// WarnInterval is the blocked-call watchdog's logging cadence.
const WarnInterval = 60 * time.Second

// Tracker watches outbound invokes for blocked calls: in parallel
// with each outbound invoke, a periodic timer logs a warning without
// ever cancelling the call. It also keeps a running DDSketch of
// completed-call wait durations so operators can read a p50/p99 of
// re-entrant call latency alongside the current wait.
type Tracker struct {
	mu     sync.Mutex
	sketch *ddsketch.DDSketch
}

// NewTracker constructs a Tracker with a relative-accuracy DDSketch
// (1% per-bucket error, the library's documented default for general
// latency tracking).
func NewTracker() *Tracker {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		// NewDefaultDDSketch only fails on an invalid accuracy constant,
		// which is fixed above, so this can't happen in practice.
		panic(err)
	}
	return &Tracker{sketch: sketch}
}

// Watch starts the watchdog for an outbound invoke from caller to
// target. The returned done func must be called exactly once when the
// call completes (success or failure); it stops the watchdog goroutine
// and records the call's duration into the sketch.
func (t *Tracker) Watch(ctx context.Context, caller, target actorid.ActorID) (done func()) {
	start := time.Now()
	stop := make(chan struct{})
	stack := FromContext(ctx)

	go func() {
		ticker := time.NewTicker(WarnInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				obslog.Blocked(caller, target, time.Since(start), stack.String())
			}
		}
	}()

	return func() {
		close(stop)
		t.record(time.Since(start))
	}
}

func (t *Tracker) record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// DDSketch tracks a unitless positive value; milliseconds keeps the
	// quantiles human-readable without additional scaling elsewhere.
	_ = t.sketch.Add(float64(d.Milliseconds()))
}

// Quantile returns the q-quantile (0..1) of recorded call durations in
// milliseconds, or 0 if no calls have completed yet.
func (t *Tracker) Quantile(q float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, err := t.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}
