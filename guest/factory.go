package guest

import (
	"context"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/host"
	"github.com/actorxio/actorx/internal/workerpool"
)

// NewFactory returns the host.Factory for a guest registration: each
// activated instance becomes an Actor proxy bound to the registration's
// worker (spawned lazily by pool) and routing nested calls back into
// the Host behind ref. gasLimit of 0 uses DefaultGasLimit.
func NewFactory(pool *workerpool.Pool, ref host.ActorHostRef, gasLimit uint64) host.Factory {
	channels := poolChannels{pool: pool}
	router := hostRouter{ref: ref}
	return func(ctx context.Context, id actorid.ActorID) (agent.Actor, error) {
		wp, err := pool.Get(ctx, id.RegID)
		if err != nil {
			return nil, err
		}
		return NewActor(id, wp.Metadata(), channels, router, gasLimit), nil
	}
}

// poolChannels adapts the worker pool to the Channels interface. Open
// re-resolves the WorkerProcess on every call, so an invocation after a
// worker crash transparently lands on the respawned process.
type poolChannels struct {
	pool *workerpool.Pool
}

func (p poolChannels) Open(ctx context.Context, reg actorid.RegistrationID) (Channel, error) {
	wp, err := p.pool.Get(ctx, reg)
	if err != nil {
		return nil, err
	}
	return wp.OpenChannel()
}

// hostRouter resolves nested calls through the weak Host handle an
// Agent is allowed to hold.
type hostRouter struct {
	ref host.ActorHostRef
}

func (r hostRouter) strong() (*host.Host, error) {
	h, ok := r.ref.Strong()
	if !ok {
		return nil, errs.New(errs.KindActorNotExist, "host has shut down")
	}
	return h, nil
}

func (r hostRouter) Invoke(ctx context.Context, id actorid.ActorID, operation string, payload []byte) ([]byte, error) {
	h, err := r.strong()
	if err != nil {
		return nil, err
	}
	return h.Invoke(ctx, id, operation, payload)
}

func (r hostRouter) Deactivate(ctx context.Context, id actorid.ActorID) error {
	h, err := r.strong()
	if err != nil {
		return err
	}
	return h.Deactivate(ctx, id)
}
