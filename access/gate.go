// Package access implements the claim-based access-control gate:
// every guest->actor call is checked against the caller's signed
// Metadata before it is allowed to reach the target.
package access

import (
	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/internal/obslog"
	"github.com/actorxio/actorx/sign"
)

// Gate checks whether a guest actor identified by callerMD may call
// into targetRegID.
type Gate struct {
	callerRegID actorid.RegistrationID
	callerMD    sign.Metadata
}

// NewGate constructs a Gate for one guest call site, closing over the
// calling guest's own RegistrationID and signed Metadata.
func NewGate(callerRegID actorid.RegistrationID, callerMD sign.Metadata) *Gate {
	return &Gate{callerRegID: callerRegID, callerMD: callerMD}
}

// CheckCall returns nil if the guest may call targetRegID, else
// errs.AccessNotPermitted. Permitted iff the target is the guest's own
// registration, or the guest's claims include ActorAccess(target).
func (g *Gate) CheckCall(targetRegID actorid.RegistrationID) error {
	if targetRegID == g.callerRegID {
		return nil
	}
	if g.callerMD.HasActorAccess(targetRegID) {
		return nil
	}
	obslog.AccessDenied(g.callerRegID, targetRegID)
	return errs.New(errs.KindAccessNotPermitted, "%s", targetRegID)
}

// CheckDeactivate returns nil iff the guest is asking to deactivate
// itself; a guest may never deactivate another actor, regardless of
// its claims.
func (g *Gate) CheckDeactivate(targetRegID actorid.RegistrationID) error {
	if targetRegID == g.callerRegID {
		return nil
	}
	obslog.DeactivateDenied(g.callerRegID, targetRegID)
	return errs.New(errs.KindAccessNotPermitted, "guest %s may not deactivate %s", g.callerRegID, targetRegID)
}
