package guestrt

import (
	"context"
	"log"

	"github.com/actorxio/actorx/wire"
)

// RerollOnce runs a turn against inst; if the guest traps on its
// first invocation on this instance, the channel re-rolls onto a
// freshly compiled instance exactly once rather than immediately
// surfacing the failure to the caller. A guest binary that simply
// hasn't warmed up its own internal state yet shouldn't fail a
// caller's very first message to it.
//
// It returns the resulting Operation, the instance that ultimately
// served the call (inst, or the fresh replacement), and any error from
// the second attempt if that one also failed. If building the
// replacement fails, it returns a nil instance and the first attempt's
// error.
func RerollOnce(
	ctx context.Context,
	inst *Instance,
	runTurn func(ctx context.Context, inst *Instance) (wire.Operation, error),
	fresh func(ctx context.Context) (*Instance, error),
) (wire.Operation, *Instance, error) {
	result, err := runTurn(ctx, inst)
	if err == nil {
		return result, inst, nil
	}

	log.Printf("guestrt: instance trapped on first invocation, rerolling onto a fresh instance: %v", err)
	_ = inst.Close(ctx)

	replacement, ferr := fresh(ctx)
	if ferr != nil {
		return wire.Operation{}, nil, err
	}

	result, err = runTurn(ctx, replacement)
	return result, replacement, err
}
