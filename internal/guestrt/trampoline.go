package guestrt

import (
	"context"
	"fmt"

	"github.com/actorxio/actorx/wire"
)

// Turn drives one logical guest invocation end-to-end: the guest's
// handle() turn either produces a final ReturnOk/ReturnErr, or a Call
// Operation that the guest wants the host to perform on its behalf
// before resuming. A single logical invocation can make an unbounded
// number of such nested calls; the trampoline lets it do so without
// the host ever re-entering guest code on the same channel, keeping
// each channel in strict request/response lockstep.
//
// Modeled as a goroutine + two unbuffered exchange channels rather
// than a coroutine, since Go has no stackful coroutines: the
// synchronous step loop runs on its own goroutine while the caller
// drives it by answering each outbound Call on hostCallCh with a
// reply on hostReplyCh.
type Turn struct {
	hostCallCh  chan wire.Operation
	hostReplyCh chan wire.Operation
	doneCh      chan turnResult
}

type turnResult struct {
	op  wire.Operation
	err error
}

// step is one handle() turn: returns the Operation the guest produced
// and whether it is an outbound host Call (true) or the turn's final
// result (false).
type step func(ctx context.Context, in wire.Operation) (out wire.Operation, isHostCall bool, err error)

// RunTurn drives a full logical invocation starting from initial,
// calling runStep for every handle() turn and forwarding any
// outbound Call operations to doHostCall. It blocks until the guest
// produces a final ReturnOk/ReturnErr or an error occurs.
func RunTurn(ctx context.Context, initial wire.Operation, runStep step, doHostCall func(ctx context.Context, call wire.Operation) (wire.Operation, error)) (wire.Operation, error) {
	// The derived cancel releases the step goroutine if this function
	// returns early (host-call failure), so it never leaks blocked on
	// an exchange nobody is driving anymore.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := &Turn{
		hostCallCh:  make(chan wire.Operation),
		hostReplyCh: make(chan wire.Operation),
		doneCh:      make(chan turnResult, 1),
	}

	go t.run(ctx, initial, runStep)

	for {
		select {
		case call := <-t.hostCallCh:
			reply, err := doHostCall(ctx, call)
			if err != nil {
				return wire.Operation{}, fmt.Errorf("guestrt: host call failed mid-turn: %w", err)
			}
			select {
			case t.hostReplyCh <- reply:
			case <-ctx.Done():
				return wire.Operation{}, ctx.Err()
			}
		case res := <-t.doneCh:
			return res.op, res.err
		case <-ctx.Done():
			return wire.Operation{}, ctx.Err()
		}
	}
}

// InstanceStep adapts an Instance's RunTurn into the step signature
// RunTurn (the package function) expects: a Call Operation coming back
// out of the guest is treated as a mid-turn host call; anything else
// is the logical invocation's final result.
func InstanceStep(inst *Instance, gasLimit uint64) step {
	first := true
	return func(ctx context.Context, in wire.Operation) (wire.Operation, bool, error) {
		// The budget is per logical invocation, not per turn: the first
		// turn arms the full limit, each later turn resumes with
		// whatever the previous one left.
		limit := gasLimit
		if !first {
			limit = inst.meter.Remaining()
		}
		first = false

		out, err := inst.RunTurn(ctx, in, limit)
		if err != nil {
			return wire.Operation{}, false, err
		}
		return out, out.Op == wire.OpCall, nil
	}
}

func (t *Turn) run(ctx context.Context, initial wire.Operation, runStep step) {
	// Guest execution can panic (e.g. a trapping polyfill import);
	// surface it as this turn's error instead of taking the worker
	// process down.
	defer func() {
		if r := recover(); r != nil {
			t.doneCh <- turnResult{err: fmt.Errorf("guestrt: guest execution panicked: %v", r)}
		}
	}()

	current := initial
	for {
		out, isHostCall, err := runStep(ctx, current)
		if err != nil {
			t.doneCh <- turnResult{err: err}
			return
		}
		if !isHostCall {
			t.doneCh <- turnResult{op: out}
			return
		}

		select {
		case t.hostCallCh <- out:
		case <-ctx.Done():
			return
		}

		select {
		case current = <-t.hostReplyCh:
		case <-ctx.Done():
			return
		}
	}
}
