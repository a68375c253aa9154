package host

import "weak"

// ActorHostRef is a weak handle back to a Host, held by Agents so that
// Host -> Registry -> Agent -> ActorHostRef -> Host never forms a
// strong reference cycle: it is the sole reference an Agent holds back
// to the Host.
type ActorHostRef struct {
	ptr weak.Pointer[Host]
}

// downgrade builds an ActorHostRef pointing at h.
func downgrade(h *Host) ActorHostRef {
	return ActorHostRef{ptr: weak.Make(h)}
}

// Strong resolves the weak reference back to a live *Host, or false if
// the Host has already been collected (which in practice only happens
// once every strong owner, including the process's top-level facade,
// has let go of it — e.g. during shutdown).
func (r ActorHostRef) Strong() (*Host, bool) {
	h := r.ptr.Value()
	return h, h != nil
}
