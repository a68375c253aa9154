// Package obslog centralizes the handful of recurring log message
// shapes used across the runtime, so call sites stay one-liners and
// operators grep for one consistent format per event.
package obslog

import (
	"log"
	"time"

	"github.com/actorxio/actorx/actorid"
)

// WorkerSpawned logs a successful worker-process cold start.
func WorkerSpawned(reg actorid.RegistrationID, pid int) {
	log.Printf("workerpool: spawned worker for %s (pid %d)", reg, pid)
}

// WorkerCrashed logs a worker process exit that will fail every
// pending channel on it.
func WorkerCrashed(reg actorid.RegistrationID, pid int, err error) {
	log.Printf("workerpool: worker for %s (pid %d) exited: %v", reg, pid, err)
}

// WorkerRestarting logs the Pool's restart of a crashed worker.
func WorkerRestarting(reg actorid.RegistrationID) {
	log.Printf("workerpool: restarting worker for %s", reg)
}

// AgentDeactivated logs a completed (non-error) Deactivate, at the
// point the inner actor's teardown has actually finished running.
func AgentDeactivated(id actorid.ActorID) {
	log.Printf("agent: %s deactivated", id)
}

// AgentDeactivateError logs a Deactivate call whose inner actor
// returned an error other than UnexpectedType.
func AgentDeactivateError(id actorid.ActorID, err error) {
	log.Printf("agent: %s deactivate returned error: %v", id, err)
}

// AccessDenied logs a rejected cross-actor call, mirroring the detail
// surfaced to the caller as AccessNotPermitted.
func AccessDenied(caller actorid.RegistrationID, target actorid.RegistrationID) {
	log.Printf("access: %s denied call to %s (no matching claim)", caller, target)
}

// DeactivateDenied logs a rejected guest-originated Deactivate of an
// actor other than the caller itself.
func DeactivateDenied(caller, target actorid.RegistrationID) {
	log.Printf("access: %s denied deactivate of %s (guests may only deactivate themselves)", caller, target)
}

// Blocked logs the calling-stack watchdog's periodic "still waiting"
// warning for an outbound invoke that hasn't returned yet.
func Blocked(caller, target actorid.ActorID, blockedFor time.Duration, stack string) {
	log.Printf(
		"%s has been blocked for %s calling %s, stack: %s",
		caller, blockedFor.Round(time.Second), target, stack,
	)
}
