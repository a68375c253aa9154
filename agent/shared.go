package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/internal/obslog"
)

// Shared is the concurrent Agent variant: callers invoke the inner
// actor directly, with no mailbox and no ordering between concurrent
// calls. A mutex-protected flag ensures Activate runs exactly once
// before the first user call's Invoke proceeds, and Deactivate is
// scheduled as a background goroutine so the caller never blocks on
// drainage.
type Shared struct {
	id    actorid.ActorID
	kind  actorid.Kind
	inner Actor

	activateOnce sync.Once
	activateErr  error

	mu          sync.Mutex
	deactivated bool
	wg          sync.WaitGroup

	doneCh chan struct{}
}

// NewShared constructs a Shared agent wrapping inner.
func NewShared(id actorid.ActorID, kind actorid.Kind, inner Actor) *Shared {
	return &Shared{id: id, kind: kind, inner: inner, doneCh: make(chan struct{})}
}

func (s *Shared) ID() actorid.ActorID { return s.id }
func (s *Shared) Kind() actorid.Kind  { return s.kind }

func (s *Shared) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.wg.Done()

	if err := s.ensureActivated(ctx); err != nil {
		return nil, err
	}
	return s.inner.Invoke(ctx, op, payload)
}

func (s *Shared) Post(ctx context.Context, op string, payload []byte) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.wg.Done()

	if err := s.ensureActivated(ctx); err != nil {
		return err
	}
	_, err := s.inner.Invoke(ctx, op, payload)
	return err
}

// begin registers one in-flight call, or rejects it if Deactivate has
// already started, atomically with respect to Deactivate's own
// "stop accepting new calls" transition.
func (s *Shared) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deactivated {
		return errs.New(errs.KindActorDeactivating, "%s", s.id)
	}
	s.wg.Add(1)
	return nil
}

func (s *Shared) ensureActivated(ctx context.Context) error {
	s.activateOnce.Do(func() {
		_, err := s.inner.Invoke(ctx, OpActivate, nil)
		if err != nil && !errs.IsUnexpectedType(err) {
			s.activateErr = fmt.Errorf("agent: error activating %s: %w", s.id, err)
		}
	})
	return s.activateErr
}

// Deactivate marks the agent as no longer accepting new calls and
// schedules the inner Deactivate on a background goroutine once all
// in-flight calls have drained, so it happens-after any
// still-in-progress call. It is idempotent and does not block the
// caller.
func (s *Shared) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	if s.deactivated {
		s.mu.Unlock()
		return nil
	}
	s.deactivated = true
	s.mu.Unlock()

	go func() {
		s.wg.Wait()
		_, err := s.inner.Invoke(context.Background(), OpDeactivate, nil)
		if err != nil && !errs.IsUnexpectedType(err) {
			obslog.AgentDeactivateError(s.id, err)
		} else {
			obslog.AgentDeactivated(s.id)
		}
		close(s.doneCh)
	}()
	return nil
}

// Done returns a channel closed once Deactivate's background drain has
// completed, for callers (e.g. Host shutdown) that do need to wait.
func (s *Shared) Done() <-chan struct{} {
	return s.doneCh
}
