package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/internal/obslog"
)

// DefaultIdleTimeout is the Looped agent's auto-deactivate ceiling.
const DefaultIdleTimeout = 5 * time.Second

type loopedMsg struct {
	ctx     context.Context
	op      string
	payload []byte
	reply   chan loopedResult // nil for Post (fire-and-forget)
}

type loopedResult struct {
	resp []byte
	err  error
}

// Looped is the single-threaded mailbox Agent variant: exactly one
// message is processed at a time, in FIFO order.
//
// The idle timer is armed only while the mailbox is empty, and is
// cancelled whenever a new message is enqueued, so a message that
// arrives just as the timer would fire is always processed first: a
// timeout can never preempt in-flight or already-queued work.
type Looped struct {
	id             actorid.ActorID
	kind           actorid.Kind
	inner          Actor
	autoDeactivate bool
	idleTimeout    time.Duration

	activated atomic.Bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*loopedMsg
	closed bool
	timer  *time.Timer

	doneCh chan struct{}
}

// NewLooped constructs a Looped agent wrapping inner. autoDeactivate
// enables the idle-deactivate behavior for non-singleton instances; it
// has no effect on the singleton instance, which is never
// auto-deactivated.
func NewLooped(id actorid.ActorID, kind actorid.Kind, inner Actor, autoDeactivate bool) *Looped {
	l := &Looped{
		id:             id,
		kind:           kind,
		inner:          inner,
		autoDeactivate: autoDeactivate,
		idleTimeout:    DefaultIdleTimeout,
		doneCh:         make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.loop()
	return l
}

func (l *Looped) ID() actorid.ActorID { return l.id }
func (l *Looped) Kind() actorid.Kind  { return l.kind }

func (l *Looped) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	reply := make(chan loopedResult, 1)
	if err := l.enqueue(ctx, op, payload, reply); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Looped) Post(ctx context.Context, op string, payload []byte) error {
	return l.enqueue(ctx, op, payload, nil)
}

func (l *Looped) enqueue(ctx context.Context, op string, payload []byte, reply chan loopedResult) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errs.New(errs.KindActorDeactivating, "%s", l.id)
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.queue = append(l.queue, &loopedMsg{ctx: ctx, op: op, payload: payload, reply: reply})
	l.cond.Signal()
	l.mu.Unlock()
	return nil
}

// Deactivate requests a clean shutdown of the mailbox. It is idempotent
// and blocks until the final Deactivate has been delivered to the
// inner actor.
func (l *Looped) Deactivate(ctx context.Context) error {
	l.requestClose()
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Looped) requestClose() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *Looped) fireIdleTimeout() {
	l.mu.Lock()
	if l.closed || len(l.queue) != 0 {
		// A message raced in just as the timer fired, or we're already
		// shutting down: never preempt in-flight/queued work.
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.requestClose()
}

func (l *Looped) loop() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			pending := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, m := range pending {
				if m.reply != nil {
					m.reply <- loopedResult{err: errs.New(errs.KindActorDeactivating, "%s", l.id)}
				}
			}
			break
		}
		m := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.process(m)
	}

	_, err := l.inner.Invoke(context.Background(), OpDeactivate, nil)
	if err != nil && !errs.IsUnexpectedType(err) {
		obslog.AgentDeactivateError(l.id, err)
	} else {
		obslog.AgentDeactivated(l.id)
	}
	close(l.doneCh)
}

func (l *Looped) process(m *loopedMsg) {
	if err := l.ensureActivated(m.ctx); err != nil {
		if m.reply != nil {
			m.reply <- loopedResult{err: err}
		}
		l.afterProcess()
		return
	}

	resp, err := l.inner.Invoke(m.ctx, m.op, m.payload)
	if m.reply != nil {
		m.reply <- loopedResult{resp: resp, err: err}
	}
	l.afterProcess()
}

func (l *Looped) ensureActivated(ctx context.Context) error {
	if l.activated.Load() {
		return nil
	}
	_, err := l.inner.Invoke(ctx, OpActivate, nil)
	if err != nil && !errs.IsUnexpectedType(err) {
		return fmt.Errorf("agent: error activating %s: %w", l.id, err)
	}
	l.activated.Store(true)
	return nil
}

func (l *Looped) afterProcess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if len(l.queue) == 0 && l.autoDeactivate && !l.id.Instance.IsSingleton() {
		l.timer = time.AfterFunc(l.idleTimeout, l.fireIdleTimeout)
	}
}
