package callstack

import (
	"context"
	"sync"
	"time"

	"github.com/actorxio/actorx/errs"
)

// DefaultTreeIdleTimeout is how long an invocation tree may go without
// any activity in its subtree before the whole tree is cancelled.
const DefaultTreeIdleTimeout = 30 * time.Second

// Tree cancels an entire invocation tree once no call in its subtree
// has made progress for the idle window. Unlike the per-call watchdog,
// which only logs, expiry here cancels the tree's context with an
// InvocationTimeout cause carrying the last stack seen.
type Tree struct {
	idle   time.Duration
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	timer     *time.Timer
	lastStack string
	stopped   bool
}

type treeKey struct{}

// WatchTree arms an idle-cancellation watch over ctx and returns the
// watched context plus the Tree handle. The caller must call Stop once
// the tree's root invocation completes. Nested invocations find the
// Tree via TreeFromContext and Touch it on every hop.
func WatchTree(ctx context.Context, idle time.Duration) (context.Context, *Tree) {
	if idle <= 0 {
		idle = DefaultTreeIdleTimeout
	}
	cctx, cancel := context.WithCancelCause(ctx)
	t := &Tree{idle: idle, cancel: cancel}
	t.timer = time.AfterFunc(idle, t.expire)
	return context.WithValue(cctx, treeKey{}, t), t
}

// TreeFromContext returns the Tree watching ctx's invocation tree, if
// one is armed.
func TreeFromContext(ctx context.Context) (*Tree, bool) {
	t, ok := ctx.Value(treeKey{}).(*Tree)
	return t, ok
}

// Touch records activity: the idle window restarts and the given stack
// becomes the one reported if the tree later expires.
func (t *Tree) Touch(s Stack) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.lastStack = s.String()
	t.timer.Reset(t.idle)
}

// Stop disarms the watch and releases the context's cancellation
// resources. Safe to call more than once.
func (t *Tree) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.timer.Stop()
	t.mu.Unlock()
	t.cancel(nil)
}

func (t *Tree) expire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	stack := t.lastStack
	t.mu.Unlock()
	t.cancel(errs.New(errs.KindInvocationTimeout, "no activity in invocation tree, stack: %s", stack))
}
