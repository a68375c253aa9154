package access_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actorxio/actorx/access"
	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/sign"
)

func TestGateSelfCallAlwaysAllowed(t *testing.T) {
	g := actorid.RegistrationIDFromString("g")
	gate := access.NewGate(g, sign.Metadata{RegID: g})
	require.NoError(t, gate.CheckCall(g))
}

func TestGateRequiresClaim(t *testing.T) {
	g := actorid.RegistrationIDFromString("g")
	c := actorid.RegistrationIDFromString("c")

	gate := access.NewGate(g, sign.Metadata{RegID: g})
	err := gate.CheckCall(c)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.AccessNotPermitted)

	gateWithClaim := access.NewGate(g, sign.Metadata{RegID: g, Claims: []sign.Claim{sign.ActorAccess(c)}})
	require.NoError(t, gateWithClaim.CheckCall(c))
}

func TestGateDeactivateSelfOnly(t *testing.T) {
	g := actorid.RegistrationIDFromString("g")
	c := actorid.RegistrationIDFromString("c")

	gate := access.NewGate(g, sign.Metadata{RegID: g, Claims: []sign.Claim{sign.ActorAccess(c)}})
	require.NoError(t, gate.CheckDeactivate(g))

	err := gate.CheckDeactivate(c)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.AccessNotPermitted)
}
