// Package wire implements the binary framing exchanged with worker
// processes: the stream encoding used between host and worker, and the
// in-guest ABI record shared between the worker driver and the guest
// WASM instance. Both encodings share the Operation data model; each
// encoding has its own encode/decode round-trip test with its own
// fixtures.
package wire

import "github.com/actorxio/actorx/errs"

// Opcode identifies which Operation variant a frame carries.
type Opcode uint8

const (
	OpCall      Opcode = 0
	OpReturnOk  Opcode = 1
	OpReturnErr Opcode = 2

	// opUninitialized is only meaningful in the ABI record's flag field
	// (never on the wire stream), marking a buffer that hasn't been
	// populated by either side yet.
	opUninitialized Opcode = 3
)

// Operation is the tagged union moved across both encodings.
type Operation struct {
	Op Opcode

	// Call fields.
	Ctx []byte
	Req []byte

	// ReturnOk field.
	Resp []byte

	// ReturnErr field.
	Err *errs.CoreError
}

// Call builds a Call operation.
func Call(ctx, req []byte) Operation {
	return Operation{Op: OpCall, Ctx: ctx, Req: req}
}

// ReturnOk builds a ReturnOk operation.
func ReturnOk(resp []byte) Operation {
	return Operation{Op: OpReturnOk, Resp: resp}
}

// ReturnErr builds a ReturnErr operation.
func ReturnErr(err *errs.CoreError) Operation {
	return Operation{Op: OpReturnErr, Err: err}
}
