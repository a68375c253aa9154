// Package errs holds the runtime's error taxonomy. Every kind
// is a sentinel usable with errors.Is (a few kinds also have an Is*
// predicate), and CoreError carries a stable
// Kind string so an error survives serialization across the wire
// codec (see package wire) without the core ever having to guess at
// the hosted application's own error types.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the core error categories. Stable across versions
// since it crosses the wire.
type Kind string

const (
	KindGasFeeExhausted         Kind = "GasFeeExhausted"
	KindWorkerCrashed           Kind = "WorkerCrashed"
	KindChannelReceivingTimeout Kind = "ChannelReceivingTimeout"
	KindBadWorkerOutput         Kind = "BadWorkerOutput"
	KindUnknownMasterCommand    Kind = "UnknownMasterCommand"
	KindAccessNotPermitted      Kind = "AccessNotPermitted"
	KindNativeActorCallingWasm  Kind = "NativeActorCallingWasmActor"
	KindRingInvocation          Kind = "RingInvocation"
	KindActorNotExist           Kind = "ActorNotExist"
	KindActorDeactivating       Kind = "ActorDeactivating"
	KindInvocationTimeout       Kind = "InvocationTimeout"
	KindSignatureMismatch       Kind = "SignatureMismatch"
	KindInvalidSignatureFormat  Kind = "InvalidSignatureFormat"
	KindUnexpectedType          Kind = "UnexpectedType"
)

// CoreError is the wire-serializable error shape. Detail is
// human-readable context; Kind is what callers should branch on.
type CoreError struct {
	Kind   Kind
	Detail string
}

func (e *CoreError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	if e.Kind == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// New builds a CoreError of the given kind with a formatted detail.
func New(kind Kind, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Is allows errors.Is(err, errs.New(kind, "")) to match purely on Kind,
// so callers can test `errors.Is(err, errs.GasFeeExhausted)`-style
// sentinels without caring about Detail.
func (e *CoreError) Is(target error) bool {
	var ce *CoreError
	if errors.As(target, &ce) {
		return ce.Kind == e.Kind
	}
	return false
}

// Sentinels usable with errors.Is. Each has an empty Detail; use New()
// to attach context when returning one.
var (
	GasFeeExhausted         = &CoreError{Kind: KindGasFeeExhausted}
	WorkerCrashed           = &CoreError{Kind: KindWorkerCrashed}
	ChannelReceivingTimeout = &CoreError{Kind: KindChannelReceivingTimeout}
	BadWorkerOutput         = &CoreError{Kind: KindBadWorkerOutput}
	UnknownMasterCommand    = &CoreError{Kind: KindUnknownMasterCommand}
	AccessNotPermitted      = &CoreError{Kind: KindAccessNotPermitted}
	NativeActorCallingWasm  = &CoreError{Kind: KindNativeActorCallingWasm}
	RingInvocation          = &CoreError{Kind: KindRingInvocation}
	ActorNotExist           = &CoreError{Kind: KindActorNotExist}
	ActorDeactivating       = &CoreError{Kind: KindActorDeactivating}
	InvocationTimeout       = &CoreError{Kind: KindInvocationTimeout}
	SignatureMismatch       = &CoreError{Kind: KindSignatureMismatch}
	InvalidSignatureFormat  = &CoreError{Kind: KindInvalidSignatureFormat}
	UnexpectedType          = &CoreError{Kind: KindUnexpectedType}
)

// From converts err into a wire-serializable *CoreError. An error that
// already is (or wraps) a CoreError keeps its Kind; anything else
// crosses the wire with an empty Kind and its message as Detail, so
// application-level error types outside this taxonomy survive
// serialization without being coerced into a core kind they don't mean.
func From(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return &CoreError{Detail: err.Error()}
}

// IsUnexpectedType reports whether err is (or wraps) the UnexpectedType
// kind. The core treats this specially: it is silently coerced to
// success for Activate/Deactivate dispatch, since an actor with no
// lifecycle logic is not an error.
func IsUnexpectedType(err error) bool {
	return errors.Is(err, UnexpectedType)
}

// IsActorNotExist reports whether err is (or wraps) ActorNotExist.
func IsActorNotExist(err error) bool {
	return errors.Is(err, ActorNotExist)
}

// IsRingInvocation reports whether err is (or wraps) RingInvocation.
func IsRingInvocation(err error) bool {
	return errors.Is(err, RingInvocation)
}
