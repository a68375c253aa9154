package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
)

// Mode selects which agent.Agent concurrency wrapper a Registration's
// instances are activated behind.
type Mode int

const (
	// ModeLooped wraps each instance in an agent.Looped mailbox.
	ModeLooped Mode = iota
	// ModeShared wraps each instance in an agent.Shared concurrent
	// wrapper.
	ModeShared
)

// Factory constructs the concrete, unwrapped agent.Actor for a newly
// activated instance of a registration.
type Factory func(ctx context.Context, id actorid.ActorID) (agent.Actor, error)

// Registration describes one RegistrationId: its actor kind, its
// concurrency Mode, whether idle instances auto-deactivate, and the
// Factory used to build fresh instances.
type Registration struct {
	RegID              actorid.RegistrationID
	Kind               actorid.Kind
	Mode               Mode
	AutoDeactivateIdle bool
	Factory            Factory
}

type slotResult struct {
	agent agent.Agent
	err   error
}

type instanceSlot struct {
	once   sync.Once
	result atomic.Pointer[slotResult]
}

// Registry owns one Registration and its live InstanceId -> Agent
// map.
type Registry struct {
	reg Registration

	mu        sync.Mutex
	instances map[actorid.InstanceID]*instanceSlot
}

// Kind returns whether this registration's instances are native or
// guest actors.
func (r *Registry) Kind() actorid.Kind { return r.reg.Kind }

func newRegistry(reg Registration) *Registry {
	return &Registry{reg: reg, instances: make(map[actorid.InstanceID]*instanceSlot)}
}

// actor returns the existing Agent for inst, or invokes the
// Registration's Factory exactly once and caches the result. ref is
// passed on to wrap, but neither agent variant stores it; a
// guest-hosted Actor reaches the Host through the ActorHostRef given
// to guest.NewFactory.
func (r *Registry) actor(ctx context.Context, ref ActorHostRef, inst actorid.InstanceID) (agent.Agent, error) {
	r.mu.Lock()
	slot, ok := r.instances[inst]
	if !ok {
		slot = &instanceSlot{}
		r.instances[inst] = slot
	}
	r.mu.Unlock()

	slot.once.Do(func() {
		id := actorid.ActorID{RegID: r.reg.RegID, Instance: inst}
		inner, err := r.reg.Factory(ctx, id)
		if err != nil {
			slot.result.Store(&slotResult{err: err})
			return
		}
		slot.result.Store(&slotResult{agent: r.wrap(id, inner, ref)})
	})

	res := slot.result.Load()
	if res.err != nil {
		// A failed activation must not permanently poison the slot: the
		// next caller gets a fresh attempt.
		r.mu.Lock()
		if r.instances[inst] == slot {
			delete(r.instances, inst)
		}
		r.mu.Unlock()
		return nil, res.err
	}
	return res.agent, nil
}

func (r *Registry) wrap(id actorid.ActorID, inner agent.Actor, ref ActorHostRef) agent.Agent {
	switch r.reg.Mode {
	case ModeShared:
		return agent.NewShared(id, r.reg.Kind, inner)
	default:
		return agent.NewLooped(id, r.reg.Kind, inner, r.reg.AutoDeactivateIdle)
	}
}

// evict drops inst from the registry's cache so a later actor() call
// activates a fresh instance. Callers invoke this once they've
// observed an instance's Agent finish deactivating.
func (r *Registry) evict(inst actorid.InstanceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, inst)
}

// liveAgents snapshots every already-activated Agent in this registry.
func (r *Registry) liveAgents() []agent.Agent {
	r.mu.Lock()
	slots := make([]*instanceSlot, 0, len(r.instances))
	for _, slot := range r.instances {
		slots = append(slots, slot)
	}
	r.mu.Unlock()

	var out []agent.Agent
	for _, slot := range slots {
		if res := slot.result.Load(); res != nil && res.err == nil && res.agent != nil {
			out = append(out, res.agent)
		}
	}
	return out
}

// peek returns the already-activated Agent for inst without invoking
// the Factory, used by MulticastZero to avoid waking up registries that
// have no live singleton.
func (r *Registry) peek(inst actorid.InstanceID) (agent.Agent, bool) {
	r.mu.Lock()
	slot, ok := r.instances[inst]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	res := slot.result.Load()
	if res == nil {
		return nil, false
	}
	return res.agent, res.err == nil && res.agent != nil
}
