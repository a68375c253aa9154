// Package guest bridges the actor registry and the worker subsystem:
// a guest actor registered with the Host resolves to a proxy that
// drives one worker channel per invocation, servicing the nested calls
// the guest emits mid-turn before its final return comes back.
package guest

import (
	"context"

	"github.com/actorxio/actorx/access"
	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
	"github.com/actorxio/actorx/callstack"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/sign"
	"github.com/actorxio/actorx/wire"
)

// DefaultGasLimit is granted per invocation when the embedding
// application doesn't configure its own budget.
const DefaultGasLimit = 1_000_000

// Channels opens one invocation channel against the worker serving a
// registration. Production wiring is the worker pool; tests substitute
// an in-memory fake.
type Channels interface {
	Open(ctx context.Context, reg actorid.RegistrationID) (Channel, error)
}

// Channel is one request/response stream for a single invocation.
type Channel interface {
	Send(op wire.Operation, gasBalance uint64) error
	Recv(ctx context.Context) (op wire.Operation, gasBalance uint64, err error)
	Close()
}

// Router dispatches a guest-originated nested call back into the actor
// directory it came from.
type Router interface {
	Invoke(ctx context.Context, id actorid.ActorID, operation string, payload []byte) ([]byte, error)
	Deactivate(ctx context.Context, id actorid.ActorID) error
}

// Actor is the host-side proxy standing in for one guest actor
// instance. It satisfies agent.Actor, so the registry wraps it in a
// Looped or Shared agent like any native actor; each Invoke opens a
// fresh worker channel and pumps it until the guest returns.
type Actor struct {
	id       actorid.ActorID
	gate     *access.Gate
	channels Channels
	router   Router
	gasLimit uint64
}

// NewActor builds the proxy for id, enforcing md's claims on every
// nested call the guest emits.
func NewActor(id actorid.ActorID, md sign.Metadata, channels Channels, router Router, gasLimit uint64) *Actor {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return &Actor{
		id:       id,
		gate:     access.NewGate(id.RegID, md),
		channels: channels,
		router:   router,
		gasLimit: gasLimit,
	}
}

// Invoke delivers operation/payload to the guest over a fresh channel
// and blocks until its final return. A Call operation arriving back
// mid-turn is a nested call the guest wants performed on its behalf:
// it is checked against the guest's claims, dispatched through the
// Router, and its result sent back down the same channel, with the
// guest's remaining gas balance echoed so the budget stays
// per-invocation rather than per-turn.
func (a *Actor) Invoke(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	ch, err := a.channels.Open(ctx, a.id.RegID)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	stack := callstack.FromContext(ctx)
	req := encodeCallReq(a.id, operation, payload)
	if err := ch.Send(wire.Call(stack.Encode(), req), a.gasLimit); err != nil {
		return nil, err
	}

	for {
		op, remaining, err := ch.Recv(ctx)
		if err != nil {
			return nil, err
		}

		switch op.Op {
		case wire.OpReturnOk:
			return op.Resp, nil
		case wire.OpReturnErr:
			if op.Err == nil {
				return nil, errs.New(errs.KindBadWorkerOutput, "error frame without an error body from %s", a.id)
			}
			return nil, op.Err
		case wire.OpCall:
			reply := a.serveNestedCall(ctx, op)
			if err := ch.Send(reply, remaining); err != nil {
				return nil, err
			}
		default:
			return nil, errs.New(errs.KindBadWorkerOutput, "unexpected opcode %d from worker for %s", op.Op, a.id)
		}
	}
}

// serveNestedCall performs one guest-originated call and renders its
// outcome as the Operation to send back. Errors cross back into the
// guest as values; the channel itself stays healthy.
func (a *Actor) serveNestedCall(ctx context.Context, call wire.Operation) wire.Operation {
	target, operation, payload, err := decodeCallReq(call.Req)
	if err != nil {
		return wire.ReturnErr(errs.New(errs.KindBadWorkerOutput, "%s emitted a malformed nested call: %v", a.id, err))
	}

	if operation == agent.OpDeactivate {
		// A guest may only deactivate itself, regardless of claims.
		if err := a.gate.CheckDeactivate(target.RegID); err != nil {
			return wire.ReturnErr(errs.From(err))
		}
		if err := a.router.Deactivate(ctx, target); err != nil {
			return wire.ReturnErr(errs.From(err))
		}
		return wire.ReturnOk(nil)
	}

	if err := a.gate.CheckCall(target.RegID); err != nil {
		return wire.ReturnErr(errs.From(err))
	}

	resp, err := a.router.Invoke(ctx, target, operation, payload)
	if err != nil {
		return wire.ReturnErr(errs.From(err))
	}
	return wire.ReturnOk(resp)
}
