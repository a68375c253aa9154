// Package agent implements the three actor-concurrency wrappers:
// Looped (single-threaded mailbox), Shared (concurrent, mutex-gated
// lifecycle), and Multicast (ordered fan-out). All three satisfy the
// common Agent contract as a tagged union via interface + type switch
// rather than a class hierarchy.
package agent

import (
	"context"

	"github.com/actorxio/actorx/actorid"
)

// Reserved lifecycle operation names sent to the wrapped Actor. An
// Actor that doesn't implement lifecycle logic for these is expected to
// return errs.UnexpectedType, which the core treats as success.
const (
	OpActivate   = "Activate"
	OpDeactivate = "Deactivate"
)

// Actor is the inner, concrete message handler wrapped by an Agent. For
// a native actor this is ordinary Go code; for a guest actor it is the
// worker-backed proxy in package guest.
type Actor interface {
	Invoke(ctx context.Context, operation string, payload []byte) ([]byte, error)
}

// Agent is the common contract implemented by Looped, Shared, and
// Multicast. Reading ID()/Kind() on a Multicast is a programmer error
// and panics.
type Agent interface {
	// Invoke delivers operation/payload and waits for a response.
	Invoke(ctx context.Context, operation string, payload []byte) ([]byte, error)
	// Post delivers operation/payload without waiting for (or even
	// guaranteeing) a response.
	Post(ctx context.Context, operation string, payload []byte) error
	// Deactivate requests the agent's underlying actor be torn down. It
	// is safe to call more than once; only the first call has any
	// effect.
	Deactivate(ctx context.Context) error
	// ID returns the actor identity this Agent wraps.
	ID() actorid.ActorID
	// Kind returns Native or Guest.
	Kind() actorid.Kind
}
