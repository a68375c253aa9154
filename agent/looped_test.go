package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
)

// recordingActor records every operation it is invoked with, in order,
// and lets a test simulate UnexpectedType responses or slow handlers.
type recordingActor struct {
	mu    sync.Mutex
	calls []string

	handle func(op string, payload []byte) ([]byte, error)
}

func (r *recordingActor) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, op)
	r.mu.Unlock()
	if r.handle != nil {
		return r.handle(op, payload)
	}
	return payload, nil
}

func (r *recordingActor) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestLoopedActivatesOnceBeforeFirstMessage(t *testing.T) {
	inner := &recordingActor{}
	id := actorid.NewSingleton(actorid.RegistrationIDFromString("d"))
	l := NewLooped(id, actorid.KindNative, inner, false)

	resp, err := l.Invoke(context.Background(), "ping", []byte("1"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), resp)

	resp, err = l.Invoke(context.Background(), "ping", []byte("2"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), resp)

	require.Equal(t, []string{OpActivate, "ping", "ping"}, inner.Calls())
}

func TestLoopedFIFO(t *testing.T) {
	var order []int
	var mu sync.Mutex
	inner := &recordingActor{
		handle: func(op string, payload []byte) ([]byte, error) {
			if op == OpActivate {
				return nil, nil
			}
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			order = append(order, int(payload[0]))
			mu.Unlock()
			return nil, nil
		},
	}
	id := actorid.NewSingleton(actorid.RegistrationIDFromString("f"))
	l := NewLooped(id, actorid.KindNative, inner, false)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Post(context.Background(), "op", []byte{byte(i)}))
	}
	_, err := l.Invoke(context.Background(), "op", []byte{5})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestLoopedUnexpectedTypeCoercedToSuccess(t *testing.T) {
	inner := &recordingActor{
		handle: func(op string, payload []byte) ([]byte, error) {
			if op == OpActivate {
				return nil, errs.UnexpectedType
			}
			return payload, nil
		},
	}
	id := actorid.NewSingleton(actorid.RegistrationIDFromString("g"))
	l := NewLooped(id, actorid.KindNative, inner, false)

	resp, err := l.Invoke(context.Background(), "ping", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), resp)
}

func TestLoopedIdleDeactivate(t *testing.T) {
	var deactivated atomicBool
	inner := &recordingActor{
		handle: func(op string, payload []byte) ([]byte, error) {
			if op == OpDeactivate {
				deactivated.set(true)
			}
			return nil, nil
		},
	}
	id := actorid.New(actorid.RegistrationIDFromString("d"), actorid.NewInstanceID())
	l := NewLooped(id, actorid.KindNative, inner, true)
	l.idleTimeout = 5 * time.Millisecond

	_, err := l.Invoke(context.Background(), "ping", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return deactivated.get()
	}, time.Second, time.Millisecond)

	select {
	case <-l.doneCh:
	case <-time.After(time.Second):
		t.Fatal("looped agent did not shut down after idle timeout")
	}
}

func TestLoopedSingletonNeverIdleDeactivates(t *testing.T) {
	inner := &recordingActor{}
	id := actorid.NewSingleton(actorid.RegistrationIDFromString("s"))
	l := NewLooped(id, actorid.KindNative, inner, true)
	l.idleTimeout = 5 * time.Millisecond

	_, err := l.Invoke(context.Background(), "ping", nil)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	select {
	case <-l.doneCh:
		t.Fatal("singleton looped agent must never idle-deactivate")
	default:
	}

	require.NoError(t, l.Deactivate(context.Background()))
}

func TestLoopedDeactivateIdempotent(t *testing.T) {
	inner := &recordingActor{}
	id := actorid.NewSingleton(actorid.RegistrationIDFromString("i"))
	l := NewLooped(id, actorid.KindNative, inner, false)

	require.NoError(t, l.Deactivate(context.Background()))
	require.NoError(t, l.Deactivate(context.Background()))

	_, err := l.Invoke(context.Background(), "ping", nil)
	require.Error(t, err)
}

// atomicBool avoids importing sync/atomic's Bool twice under different
// names in the same test file; it mirrors the real type's semantics.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}
