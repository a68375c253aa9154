package host

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
	"github.com/actorxio/actorx/errs"
)

// Shared agents run their final Deactivate on a background goroutine,
// so lifecycle assertions poll briefly instead of sleeping.
const (
	testWait = time.Second
	testTick = 5 * time.Millisecond
)

// relayActor forwards every user operation to a fixed next hop through
// the Host, so tests can build call chains of arbitrary shape.
type relayActor struct {
	h       *Host
	next    actorid.ActorID
	entries int32
}

func (a *relayActor) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op == agent.OpActivate || op == agent.OpDeactivate {
		return nil, errs.UnexpectedType
	}
	atomic.AddInt32(&a.entries, 1)
	return a.h.Invoke(ctx, a.next, op, payload)
}

// leafActor records entries and echoes its payload.
type leafActor struct {
	entries int32
}

func (a *leafActor) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op == agent.OpActivate || op == agent.OpDeactivate {
		return nil, errs.UnexpectedType
	}
	atomic.AddInt32(&a.entries, 1)
	return payload, nil
}

func registerActor(h *Host, name string, kind actorid.Kind, inner agent.Actor) actorid.ActorID {
	regID := actorid.RegistrationIDFromString(name)
	h.RegisterFactory(Registration{
		RegID: regID,
		Kind:  kind,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			return inner, nil
		},
	})
	return actorid.NewSingleton(regID)
}

func TestInvokeDeliversThroughStack(t *testing.T) {
	h := New(nil)
	leaf := &leafActor{}
	id := registerActor(h, "leaf", actorid.KindNative, leaf)

	resp, err := h.Invoke(context.Background(), id, "echo", []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), resp)
	require.EqualValues(t, 1, atomic.LoadInt32(&leaf.entries))
}

func TestInvokeDetectsRing(t *testing.T) {
	h := New(nil)
	aInner := &relayActor{h: h}
	bInner := &relayActor{h: h}
	aID := registerActor(h, "a", actorid.KindNative, aInner)
	bID := registerActor(h, "b", actorid.KindNative, bInner)
	aInner.next = bID
	bInner.next = aID

	_, err := h.Invoke(context.Background(), aID, "ping", nil)
	require.ErrorIs(t, err, errs.RingInvocation)

	// Each actor entered exactly once: the ring is refused before a
	// second entry, not after.
	require.EqualValues(t, 1, atomic.LoadInt32(&aInner.entries))
	require.EqualValues(t, 1, atomic.LoadInt32(&bInner.entries))
}

func TestInvokeRejectsNativeCallingGuest(t *testing.T) {
	h := New(nil)

	gInner := &leafActor{}
	gID := registerActor(h, "g", actorid.KindGuest, gInner)

	nInner := &relayActor{h: h, next: gID}
	nID := registerActor(h, "n", actorid.KindNative, nInner)

	_, err := h.Invoke(context.Background(), nID, "ping", nil)
	require.ErrorIs(t, err, errs.NativeActorCallingWasm)
	require.EqualValues(t, 0, atomic.LoadInt32(&gInner.entries))
}

func TestInvokeRejectsNativeDownCallingGuestPastGuestFrame(t *testing.T) {
	h := New(nil)

	g2Inner := &leafActor{}
	g2ID := registerActor(h, "g2", actorid.KindGuest, g2Inner)

	nInner := &relayActor{h: h, next: g2ID}
	nID := registerActor(h, "n", actorid.KindNative, nInner)

	g1Inner := &relayActor{h: h, next: nID}
	g1ID := registerActor(h, "g1", actorid.KindGuest, g1Inner)

	_, err := h.Invoke(context.Background(), g1ID, "ping", nil)
	require.ErrorIs(t, err, errs.NativeActorCallingWasm)
	require.EqualValues(t, 0, atomic.LoadInt32(&g2Inner.entries))
}

func TestTopLevelInvokeOfGuestIsAllowed(t *testing.T) {
	h := New(nil)
	gInner := &leafActor{}
	gID := registerActor(h, "g", actorid.KindGuest, gInner)

	_, err := h.Invoke(context.Background(), gID, "ping", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&gInner.entries))
}

type lifecycleActor struct {
	activates   int32
	deactivates int32
}

func (a *lifecycleActor) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	switch op {
	case agent.OpActivate:
		atomic.AddInt32(&a.activates, 1)
	case agent.OpDeactivate:
		atomic.AddInt32(&a.deactivates, 1)
	}
	return nil, nil
}

func TestDeactivateTearsDownAndAllowsReactivation(t *testing.T) {
	h := New(nil)
	regID := actorid.RegistrationIDFromString("life")
	var factoryCalls int32
	inner := &lifecycleActor{}
	h.RegisterFactory(Registration{
		RegID: regID,
		Kind:  actorid.KindNative,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			atomic.AddInt32(&factoryCalls, 1)
			return inner, nil
		},
	})
	id := actorid.NewSingleton(regID)

	_, err := h.Invoke(context.Background(), id, "ping", nil)
	require.NoError(t, err)

	require.NoError(t, h.Deactivate(context.Background(), id))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&inner.deactivates) == 1
	}, testWait, testTick)

	_, err = h.Invoke(context.Background(), id, "ping", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&factoryCalls))
	require.EqualValues(t, 2, atomic.LoadInt32(&inner.activates))
}

func TestDeactivateOfUnactivatedInstanceIsNoOp(t *testing.T) {
	h := New(nil)
	id := registerActor(h, "idle", actorid.KindNative, &leafActor{})
	require.NoError(t, h.Deactivate(context.Background(), id))
}

func TestInvokeRecreatesAfterAgentWoundDownOnItsOwn(t *testing.T) {
	h := New(nil)
	regID := actorid.RegistrationIDFromString("winding")
	var factoryCalls int32
	h.RegisterFactory(Registration{
		RegID: regID,
		Kind:  actorid.KindNative,
		Mode:  ModeLooped,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			atomic.AddInt32(&factoryCalls, 1)
			return &leafActor{}, nil
		},
	})
	id := actorid.NewSingleton(regID)

	_, err := h.Invoke(context.Background(), id, "ping", nil)
	require.NoError(t, err)

	// Wind the agent down behind the registry's back, as the idle timer
	// does; the registry still holds the dead Agent.
	a, err := h.Actor(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, a.Deactivate(context.Background()))

	// A fresh sender re-enters through the registry and lands on a
	// cleanly recreated instance instead of seeing ActorDeactivating.
	_, err = h.Invoke(context.Background(), id, "ping", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&factoryCalls))
}

// stallingActor blocks until its context is cancelled.
type stallingActor struct{}

func (stallingActor) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op == agent.OpActivate || op == agent.OpDeactivate {
		return nil, errs.UnexpectedType
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInvokeCancelsIdleTreeWithInvocationTimeout(t *testing.T) {
	h := New(nil)
	h.SetTreeIdleTimeout(20 * time.Millisecond)
	id := registerActor(h, "stuck", actorid.KindNative, stallingActor{})

	_, err := h.Invoke(context.Background(), id, "ping", nil)
	require.ErrorIs(t, err, errs.InvocationTimeout)
}

func TestShutdownDeactivatesEveryLiveAgent(t *testing.T) {
	h := New(nil)
	first := &lifecycleActor{}
	second := &lifecycleActor{}
	firstID := registerActor(h, "first", actorid.KindNative, first)
	secondID := registerActor(h, "second", actorid.KindNative, second)

	_, err := h.Invoke(context.Background(), firstID, "ping", nil)
	require.NoError(t, err)
	_, err = h.Invoke(context.Background(), secondID, "ping", nil)
	require.NoError(t, err)

	require.NoError(t, h.Shutdown(context.Background()))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&first.deactivates) == 1 &&
			atomic.LoadInt32(&second.deactivates) == 1
	}, testWait, testTick)
}
