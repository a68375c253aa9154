package host

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
	"github.com/actorxio/actorx/errs"
)

type nopActor struct {
	invocations int32
}

func (a *nopActor) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	atomic.AddInt32(&a.invocations, 1)
	return payload, nil
}

func TestHostActorNotExistOnUnregisteredKind(t *testing.T) {
	h := New(nil)
	id := actorid.NewSingleton(actorid.RegistrationIDFromString("missing"))

	_, err := h.Actor(context.Background(), id)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ActorNotExist))
}

func TestHostActorInvokesFactoryExactlyOnce(t *testing.T) {
	h := New(nil)
	regID := actorid.RegistrationIDFromString("counter")
	var factoryCalls int32
	inner := &nopActor{}

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
	a1, err := h.Actor(context.Background(), id)
	require.NoError(t, err)
	a2, err := h.Actor(context.Background(), id)
	require.NoError(t, err)

	require.Same(t, a1, a2)
	require.EqualValues(t, 1, atomic.LoadInt32(&factoryCalls))
}

func TestHostDistinctInstancesGetDistinctAgents(t *testing.T) {
	h := New(nil)
	regID := actorid.RegistrationIDFromString("multi")
	h.RegisterFactory(Registration{
		RegID: regID,
		Kind:  actorid.KindNative,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			return &nopActor{}, nil
		},
	})

	id1 := actorid.New(regID, actorid.NewInstanceID())
	id2 := actorid.New(regID, actorid.NewInstanceID())

	a1, err := h.Actor(context.Background(), id1)
	require.NoError(t, err)
	a2, err := h.Actor(context.Background(), id2)
	require.NoError(t, err)

	require.NotSame(t, a1, a2)
}

func TestHostFailedActivationDoesNotPoisonSlot(t *testing.T) {
	h := New(nil)
	regID := actorid.RegistrationIDFromString("flaky")
	boom := errors.New("boom")
	var calls int32

	h.RegisterFactory(Registration{
		RegID: regID,
		Kind:  actorid.KindNative,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				return nil, boom
			}
			return &nopActor{}, nil
		},
	})

	id := actorid.NewSingleton(regID)
	_, err := h.Actor(context.Background(), id)
	require.ErrorIs(t, err, boom)

	a, err := h.Actor(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHostMulticastZeroSkipsUnactivatedRegistrations(t *testing.T) {
	h := New(nil)
	regActive := actorid.RegistrationIDFromString("active")
	regIdle := actorid.RegistrationIDFromString("idle")

	h.RegisterFactory(Registration{
		RegID: regActive,
		Kind:  actorid.KindNative,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			return &nopActor{}, nil
		},
	})
	h.RegisterFactory(Registration{
		RegID: regIdle,
		Kind:  actorid.KindNative,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			return &nopActor{}, nil
		},
	})

	_, err := h.Actor(context.Background(), actorid.NewSingleton(regActive))
	require.NoError(t, err)

	mc := h.MulticastZero()
	// nopActor echoes its payload and Multicast concatenates the
	// children's replies, so one "x" means only the active singleton ran.
	resp, err := mc.Invoke(context.Background(), "ping", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), resp)
}

func TestHostEvictAllowsReactivation(t *testing.T) {
	h := New(nil)
	regID := actorid.RegistrationIDFromString("evictable")
	var calls int32
	h.RegisterFactory(Registration{
		RegID: regID,
		Kind:  actorid.KindNative,
		Mode:  ModeShared,
		Factory: func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
			atomic.AddInt32(&calls, 1)
			return &nopActor{}, nil
		},
	})

	id := actorid.NewSingleton(regID)
	_, err := h.Actor(context.Background(), id)
	require.NoError(t, err)

	h.Evict(id)

	_, err = h.Actor(context.Background(), id)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
