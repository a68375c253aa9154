package guest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/sign"
	"github.com/actorxio/actorx/wire"
)

type sentFrame struct {
	op  wire.Operation
	gas uint64
}

type recvResult struct {
	op  wire.Operation
	gas uint64
	err error
}

type fakeChannel struct {
	sent   []sentFrame
	script []recvResult
	closed bool
}

func (c *fakeChannel) Send(op wire.Operation, gas uint64) error {
	c.sent = append(c.sent, sentFrame{op: op, gas: gas})
	return nil
}

func (c *fakeChannel) Recv(ctx context.Context) (wire.Operation, uint64, error) {
	if len(c.script) == 0 {
		return wire.Operation{}, 0, errors.New("fakeChannel: recv past end of script")
	}
	r := c.script[0]
	c.script = c.script[1:]
	return r.op, r.gas, r.err
}

func (c *fakeChannel) Close() { c.closed = true }

type fakeChannels struct {
	ch  *fakeChannel
	err error
}

func (f fakeChannels) Open(ctx context.Context, reg actorid.RegistrationID) (Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type invocation struct {
	id        actorid.ActorID
	operation string
	payload   []byte
}

type fakeRouter struct {
	invocations []invocation
	resp        []byte
	err         error

	deactivated []actorid.ActorID
}

func (r *fakeRouter) Invoke(ctx context.Context, id actorid.ActorID, operation string, payload []byte) ([]byte, error) {
	r.invocations = append(r.invocations, invocation{id: id, operation: operation, payload: payload})
	return r.resp, r.err
}

func (r *fakeRouter) Deactivate(ctx context.Context, id actorid.ActorID) error {
	r.deactivated = append(r.deactivated, id)
	return nil
}

func guestID(name string) actorid.ActorID {
	return actorid.NewSingleton(actorid.RegistrationIDFromString(name))
}

func mdWithAccess(targets ...string) sign.Metadata {
	var claims []sign.Claim
	for _, t := range targets {
		claims = append(claims, sign.ActorAccess(actorid.RegistrationIDFromString(t)))
	}
	return sign.Metadata{Claims: claims}
}

func TestInvokeImmediateReturn(t *testing.T) {
	ch := &fakeChannel{script: []recvResult{
		{op: wire.ReturnOk([]byte("pong")), gas: 900},
	}}
	a := NewActor(guestID("g"), sign.Metadata{}, fakeChannels{ch: ch}, &fakeRouter{}, 1000)

	resp, err := a.Invoke(context.Background(), "handle", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), resp)
	require.True(t, ch.closed)

	require.Len(t, ch.sent, 1)
	require.Equal(t, wire.OpCall, ch.sent[0].op.Op)
	require.EqualValues(t, 1000, ch.sent[0].gas)

	target, operation, payload, err := decodeCallReq(ch.sent[0].op.Req)
	require.NoError(t, err)
	require.True(t, target.Equal(guestID("g")))
	require.Equal(t, "handle", operation)
	require.Equal(t, []byte("ping"), payload)
}

func TestInvokeReturnsGuestError(t *testing.T) {
	ch := &fakeChannel{script: []recvResult{
		{op: wire.ReturnErr(errs.New(errs.KindGasFeeExhausted, "g")), gas: 0},
	}}
	a := NewActor(guestID("g"), sign.Metadata{}, fakeChannels{ch: ch}, &fakeRouter{}, 1000)

	_, err := a.Invoke(context.Background(), "handle", nil)
	require.ErrorIs(t, err, errs.GasFeeExhausted)
}

func TestNestedCallDispatchedThroughRouter(t *testing.T) {
	target := guestID("c")
	nested := encodeCallReq(target, "handle", []byte{2})
	ch := &fakeChannel{script: []recvResult{
		{op: wire.Call(nil, nested), gas: 700},
		{op: wire.ReturnOk([]byte{3, 4, 9}), gas: 650},
	}}
	router := &fakeRouter{resp: []byte{3, 4}}
	a := NewActor(guestID("g"), mdWithAccess("c"), fakeChannels{ch: ch}, router, 1000)

	resp, err := a.Invoke(context.Background(), "handle", []byte{1})
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4, 9}, resp)

	require.Len(t, router.invocations, 1)
	require.True(t, router.invocations[0].id.Equal(target))
	require.Equal(t, "handle", router.invocations[0].operation)
	require.Equal(t, []byte{2}, router.invocations[0].payload)

	// The nested call's reply echoes the balance the guest had left, so
	// the budget stays per-invocation.
	require.Len(t, ch.sent, 2)
	require.Equal(t, wire.OpReturnOk, ch.sent[1].op.Op)
	require.Equal(t, []byte{3, 4}, ch.sent[1].op.Resp)
	require.EqualValues(t, 700, ch.sent[1].gas)
}

func TestNestedCallToSelfNeedsNoClaim(t *testing.T) {
	self := guestID("g")
	ch := &fakeChannel{script: []recvResult{
		{op: wire.Call(nil, encodeCallReq(self, "handle", nil)), gas: 500},
		{op: wire.ReturnOk(nil), gas: 400},
	}}
	router := &fakeRouter{}
	a := NewActor(self, sign.Metadata{}, fakeChannels{ch: ch}, router, 1000)

	_, err := a.Invoke(context.Background(), "handle", nil)
	require.NoError(t, err)
	require.Len(t, router.invocations, 1)
}

func TestNestedCallWithoutClaimIsDeniedBeforeDispatch(t *testing.T) {
	ch := &fakeChannel{script: []recvResult{
		{op: wire.Call(nil, encodeCallReq(guestID("c"), "handle", nil)), gas: 500},
		{op: wire.ReturnOk(nil), gas: 400},
	}}
	router := &fakeRouter{}
	a := NewActor(guestID("g"), sign.Metadata{}, fakeChannels{ch: ch}, router, 1000)

	_, err := a.Invoke(context.Background(), "handle", nil)
	require.NoError(t, err)

	require.Empty(t, router.invocations)
	require.Len(t, ch.sent, 2)
	require.Equal(t, wire.OpReturnErr, ch.sent[1].op.Op)
	require.Equal(t, errs.KindAccessNotPermitted, ch.sent[1].op.Err.Kind)
}

func TestNestedDeactivateSelf(t *testing.T) {
	self := guestID("g")
	ch := &fakeChannel{script: []recvResult{
		{op: wire.Call(nil, encodeCallReq(self, agent.OpDeactivate, nil)), gas: 500},
		{op: wire.ReturnOk(nil), gas: 400},
	}}
	router := &fakeRouter{}
	a := NewActor(self, sign.Metadata{}, fakeChannels{ch: ch}, router, 1000)

	_, err := a.Invoke(context.Background(), "handle", nil)
	require.NoError(t, err)

	require.Len(t, router.deactivated, 1)
	require.True(t, router.deactivated[0].Equal(self))
	require.Equal(t, wire.OpReturnOk, ch.sent[1].op.Op)
}

func TestNestedDeactivateOfOtherActorIsDeniedDespiteClaims(t *testing.T) {
	ch := &fakeChannel{script: []recvResult{
		{op: wire.Call(nil, encodeCallReq(guestID("c"), agent.OpDeactivate, nil)), gas: 500},
		{op: wire.ReturnOk(nil), gas: 400},
	}}
	router := &fakeRouter{}
	a := NewActor(guestID("g"), mdWithAccess("c"), fakeChannels{ch: ch}, router, 1000)

	_, err := a.Invoke(context.Background(), "handle", nil)
	require.NoError(t, err)

	require.Empty(t, router.deactivated)
	require.Equal(t, wire.OpReturnErr, ch.sent[1].op.Op)
	require.Equal(t, errs.KindAccessNotPermitted, ch.sent[1].op.Err.Kind)
}

func TestInvokeSurfacesChannelErrors(t *testing.T) {
	ch := &fakeChannel{script: []recvResult{
		{err: errs.WorkerCrashed},
	}}
	a := NewActor(guestID("g"), sign.Metadata{}, fakeChannels{ch: ch}, &fakeRouter{}, 1000)

	_, err := a.Invoke(context.Background(), "handle", nil)
	require.ErrorIs(t, err, errs.WorkerCrashed)
}

func TestCallReqRoundTrip(t *testing.T) {
	target := actorid.New(actorid.NewRegistrationID([]byte{0xfe, 0x00}), actorid.NewInstanceID())
	raw := encodeCallReq(target, "transfer", []byte{9, 9})

	got, operation, payload, err := decodeCallReq(raw)
	require.NoError(t, err)
	require.True(t, got.Equal(target))
	require.Equal(t, "transfer", operation)
	require.Equal(t, []byte{9, 9}, payload)
}

func TestCallReqEmptyPayload(t *testing.T) {
	raw := encodeCallReq(guestID("g"), agent.OpActivate, nil)
	_, operation, payload, err := decodeCallReq(raw)
	require.NoError(t, err)
	require.Equal(t, agent.OpActivate, operation)
	require.Empty(t, payload)
}
