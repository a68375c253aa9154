// Package host implements the actor directory: a concurrent
// RegistrationId -> Registry map, plus the process-wide print sink
// guest actors write diagnostic output to.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
	"github.com/actorxio/actorx/callstack"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/internal/activationcache"
)

// PrintSink receives a line of diagnostic output written by a guest
// actor's env.print host import, tagged with the actor that wrote it.
type PrintSink func(id actorid.ActorID, line string)

// Host owns every live Registry. It has no persistence layer: a
// process restart loses all registrations and activations.
type Host struct {
	mu         sync.RWMutex
	registries map[actorid.RegistrationID]*Registry

	print    PrintSink
	tracker  *callstack.Tracker
	treeIdle time.Duration

	// lookups absorbs repeat Agent resolutions for hot actors so the
	// per-registry locking is off the fast path. A stale hit is
	// self-correcting: a deactivated Agent's methods fail cleanly and
	// the entry expires within its TTL.
	lookups *activationcache.Cache
}

// New constructs an empty Host. print may be nil, in which case
// guest print output is discarded.
func New(print PrintSink) *Host {
	if print == nil {
		print = func(actorid.ActorID, string) {}
	}
	lookups, err := activationcache.New(0)
	if err != nil {
		// Only reachable with an invalid cache config, which the
		// defaults are not; run without the cache rather than fail.
		lookups = nil
	}
	return &Host{
		registries: make(map[actorid.RegistrationID]*Registry),
		print:      print,
		tracker:    callstack.NewTracker(),
		treeIdle:   callstack.DefaultTreeIdleTimeout,
		lookups:    lookups,
	}
}

// SetTreeIdleTimeout overrides how long an invocation tree may sit
// idle before it is cancelled wholesale with InvocationTimeout.
func (h *Host) SetTreeIdleTimeout(d time.Duration) {
	if d > 0 {
		h.treeIdle = d
	}
}

// Print routes a guest's diagnostic output line to the Host's sink.
func (h *Host) Print(id actorid.ActorID, line string) {
	h.print(id, line)
}

// Downgrade returns a weak handle back to h, suitable for handing to
// an Agent so it can reach the Host without holding a strong
// reference, which would make Host -> Registry -> Agent -> Host an
// uncollectable cycle.
func (h *Host) Downgrade() ActorHostRef {
	return downgrade(h)
}

// RegisterFactory installs reg, replacing any prior registration under
// the same RegID. Existing live instances of a replaced registration
// are left running under the old Registry; callers that need a clean
// cutover should deactivate them first.
func (h *Host) RegisterFactory(reg Registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registries[reg.RegID] = newRegistry(reg)
}

// registry looks up the Registry for reg, failing with ActorNotExist
// on a miss.
func (h *Host) registry(reg actorid.RegistrationID) (*Registry, error) {
	h.mu.RLock()
	r, ok := h.registries[reg]
	h.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindActorNotExist, "no registration for %s", reg)
	}
	return r, nil
}

// Actor resolves id to its live Agent, activating it via the
// registration's Factory on first use; later lookups return the same
// Agent for as long as the entry lives.
func (h *Host) Actor(ctx context.Context, id actorid.ActorID) (agent.Agent, error) {
	if h.lookups != nil {
		if a, ok := h.lookups.Get(id); ok {
			return a, nil
		}
	}
	r, err := h.registry(id.RegID)
	if err != nil {
		return nil, err
	}
	a, err := r.actor(ctx, h.Downgrade(), id.Instance)
	if err != nil {
		return nil, err
	}
	if h.lookups != nil {
		h.lookups.Set(id, a)
	}
	return a, nil
}

// Invoke resolves id to its Agent and delivers operation/payload
// through the calling-stack checks: the target is pushed onto the
// caller's stack carried by ctx, a call that would revisit an actor
// already on the stack fails with RingInvocation before dispatching,
// and a native caller invoking a guest target fails with
// NativeActorCallingWasmActor (only a bare top-level call may enter a
// guest). A watchdog logs a warning for every minute the call stays
// blocked, without ever cancelling it.
func (h *Host) Invoke(ctx context.Context, id actorid.ActorID, operation string, payload []byte) ([]byte, error) {
	resp, err := h.invokeOnce(ctx, id, operation, payload)
	if err != nil && errors.Is(err, errs.ActorDeactivating) {
		// The resolved Agent was already winding down (e.g. its idle
		// timer fired): senders that were in its mailbox get the error,
		// but a fresh sender re-enters through the registry and lands
		// on a cleanly recreated instance.
		h.Evict(id)
		return h.invokeOnce(ctx, id, operation, payload)
	}
	return resp, err
}

func (h *Host) invokeOnce(ctx context.Context, id actorid.ActorID, operation string, payload []byte) ([]byte, error) {
	a, cctx, err := h.enter(ctx, id)
	if err != nil {
		return nil, err
	}

	// A top-level invocation arms the whole-tree idle cancellation;
	// every nested hop below it registers as activity.
	if tree, ok := callstack.TreeFromContext(cctx); ok {
		tree.Touch(callstack.FromContext(cctx))
	} else {
		var tree *callstack.Tree
		cctx, tree = callstack.WatchTree(cctx, h.treeIdle)
		tree.Touch(callstack.FromContext(cctx))
		defer tree.Stop()
	}

	caller := callerFrom(ctx)
	done := h.tracker.Watch(cctx, caller, id)
	defer done()

	resp, err := a.Invoke(cctx, operation, payload)
	if err != nil {
		if cause := context.Cause(cctx); cause != nil && errors.Is(cause, errs.InvocationTimeout) {
			return nil, cause
		}
	}
	return resp, err
}

// Post is Invoke without a reply: the message is delivered through the
// same calling-stack checks, but the caller does not wait on the
// handler's result.
func (h *Host) Post(ctx context.Context, id actorid.ActorID, operation string, payload []byte) error {
	err := h.postOnce(ctx, id, operation, payload)
	if err != nil && errors.Is(err, errs.ActorDeactivating) {
		h.Evict(id)
		return h.postOnce(ctx, id, operation, payload)
	}
	return err
}

func (h *Host) postOnce(ctx context.Context, id actorid.ActorID, operation string, payload []byte) error {
	a, cctx, err := h.enter(ctx, id)
	if err != nil {
		return err
	}
	return a.Post(cctx, operation, payload)
}

// enter resolves id's Agent and pushes it onto ctx's calling stack.
func (h *Host) enter(ctx context.Context, id actorid.ActorID) (agent.Agent, context.Context, error) {
	r, err := h.registry(id.RegID)
	if err != nil {
		return nil, nil, err
	}
	a, err := h.Actor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	cctx, err := callstack.Enter(ctx, id, r.Kind())
	if err != nil {
		return nil, nil, err
	}
	return a, cctx, nil
}

func callerFrom(ctx context.Context) actorid.ActorID {
	if top, ok := callstack.FromContext(ctx).Top(); ok {
		return top.ActorID
	}
	return actorid.ActorID{}
}

// Deactivate tears down id's live Agent, if any, and evicts it so a
// later Invoke re-activates a fresh instance. A registration or
// instance that was never activated is a no-op, not an error.
func (h *Host) Deactivate(ctx context.Context, id actorid.ActorID) error {
	r, err := h.registry(id.RegID)
	if err != nil {
		return err
	}
	a, ok := r.peek(id.Instance)
	if !ok {
		return nil
	}
	err = a.Deactivate(ctx)
	r.evict(id.Instance)
	if h.lookups != nil {
		h.lookups.Del(id)
	}
	return err
}

// Evict drops id's cached Agent so a subsequent Actor call activates a
// fresh instance. Intended to be called once a caller has observed an
// instance's Agent finish deactivating.
func (h *Host) Evict(id actorid.ActorID) {
	r, err := h.registry(id.RegID)
	if err != nil {
		return
	}
	r.evict(id.Instance)
	if h.lookups != nil {
		h.lookups.Del(id)
	}
}

// Shutdown deactivates every live Agent, best-effort: each Agent's
// Deactivate is attempted even if an earlier one failed, and the first
// error is returned. The Host remains usable afterwards; callers that
// want a fully fresh directory re-register.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	registries := make([]*Registry, 0, len(h.registries))
	for _, r := range h.registries {
		registries = append(registries, r)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, r := range registries {
		for _, a := range r.liveAgents() {
			if err := a.Deactivate(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// MulticastZero returns a Multicast Agent over the already-activated
// InstanceId-0 member of every registration, used to broadcast
// lifecycle signals such as import/export across every actor type the
// Host currently knows about. Registrations with no live
// singleton are skipped rather than eagerly activated, so broadcasting
// never has the side effect of spinning up actors nobody has used yet.
func (h *Host) MulticastZero() *agent.Multicast {
	h.mu.RLock()
	regs := make([]actorid.RegistrationID, 0, len(h.registries))
	for reg := range h.registries {
		regs = append(regs, reg)
	}
	registries := h.registries
	h.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].String() < regs[j].String() })

	var members []agent.Agent
	for _, reg := range regs {
		r := registries[reg]
		if a, ok := r.peek(actorid.SingletonInstanceID); ok {
			members = append(members, a)
		}
	}
	return agent.NewMulticast(members)
}

// String implements fmt.Stringer for debugging/log output.
func (h *Host) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("host{registrations=%d}", len(h.registries))
}
