// Package actorid defines the identity types shared by every other
// package in actorx: the (RegistrationID, InstanceID) pair that names an
// actor, and the Kind that distinguishes native from guest actors.
package actorid

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind distinguishes a native (in-process Go) actor from a guest
// (WASM) actor. Agents and the calling stack both need this to keep
// trusted and sandboxed frames apart.
type Kind uint8

const (
	// KindNative is a trusted, in-process actor implemented in Go.
	KindNative Kind = iota
	// KindGuest is a sandboxed actor whose code is a signed WASM binary.
	KindGuest
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindGuest:
		return "guest"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// RegistrationID is the opaque, immutable identity of a registration. It
// may be arbitrary bytes; String() renders non-UTF-8 values as
// "#"+base64 so they remain loggable.
type RegistrationID struct {
	raw string
}

// NewRegistrationID wraps raw bytes as a RegistrationID. Two
// RegistrationIDs are equal iff their underlying bytes are equal.
func NewRegistrationID(raw []byte) RegistrationID {
	return RegistrationID{raw: string(raw)}
}

// RegistrationIDFromString is a convenience constructor for the common
// case of a UTF-8 identity, e.g. RegistrationIDFromString("a").
func RegistrationIDFromString(s string) RegistrationID {
	return RegistrationID{raw: s}
}

// Bytes returns the raw identity bytes.
func (r RegistrationID) Bytes() []byte { return []byte(r.raw) }

// String renders the identity for logs: the raw string if it is valid
// UTF-8, otherwise "#"+base64(raw).
func (r RegistrationID) String() string {
	if utf8.ValidString(r.raw) {
		return r.raw
	}
	return "#" + base64.StdEncoding.EncodeToString([]byte(r.raw))
}

// IsZero reports whether this RegistrationID was never set.
func (r RegistrationID) IsZero() bool { return r.raw == "" }

// InstanceID is a 128-bit instance identifier. It is backed by
// uuid.UUID since both are 128 bits; the zero value (uuid.Nil) is the
// reserved "singleton" instance, which is never auto-deactivated.
type InstanceID uuid.UUID

// SingletonInstanceID is the reserved instance ID (all zero bits) that
// denotes the non-auto-deactivating singleton instance of a
// registration.
var SingletonInstanceID = InstanceID(uuid.Nil)

// NewInstanceID generates a fresh, random InstanceID.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.New())
}

// IsSingleton reports whether this is the reserved instance-0 ID.
func (i InstanceID) IsSingleton() bool {
	return i == SingletonInstanceID
}

// Bytes returns the instance ID's 16 raw bytes, big-endian, for wire
// encodings that carry an InstanceID verbatim.
func (i InstanceID) Bytes() [16]byte { return [16]byte(i) }

// InstanceIDFromBytes is the inverse of Bytes.
func InstanceIDFromBytes(b [16]byte) InstanceID { return InstanceID(b) }

func (i InstanceID) String() string {
	return uuid.UUID(i).String()
}

// ActorID is the full (RegistrationID, InstanceID) identity of a live or
// potential actor.
type ActorID struct {
	RegID    RegistrationID
	Instance InstanceID
}

// New builds an ActorID from its parts.
func New(regID RegistrationID, instance InstanceID) ActorID {
	return ActorID{RegID: regID, Instance: instance}
}

// NewSingleton builds the ActorID for the singleton instance of regID.
func NewSingleton(regID RegistrationID) ActorID {
	return ActorID{RegID: regID, Instance: SingletonInstanceID}
}

func (a ActorID) String() string {
	return fmt.Sprintf("%s:%s", a.RegID, a.Instance)
}

// Equal reports byte-wise RegistrationID and numeric InstanceID
// equality.
func (a ActorID) Equal(o ActorID) bool {
	return a.RegID == o.RegID && a.Instance == o.Instance
}
