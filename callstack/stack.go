// Package callstack implements the task-local calling stack carried
// by every in-flight invocation, ring detection over it, the
// native-calling-guest crossing rule, and the blocked-call watchdog.
package callstack

import (
	"context"
	"strings"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
)

// Frame is one entry on the calling stack: the actor being invoked and
// whether it is native or guest code.
type Frame struct {
	ActorID actorid.ActorID
	Kind    actorid.Kind
}

// Stack is a persistent, immutable, singly-linked list of Frames,
// newest first. The zero value is the empty stack.
type Stack struct {
	head *node
}

type node struct {
	frame Frame
	next  *node
}

// Empty returns the empty calling stack, used as the starting point for
// a brand new top-level invocation (there is no caller context yet).
func Empty() Stack { return Stack{} }

// IsEmpty reports whether the stack has no frames.
func (s Stack) IsEmpty() bool { return s.head == nil }

// Top returns the most recently pushed frame and true, or the zero
// Frame and false if the stack is empty.
func (s Stack) Top() (Frame, bool) {
	if s.head == nil {
		return Frame{}, false
	}
	return s.head.frame, true
}

// Frames returns the stack's frames, newest first.
func (s Stack) Frames() []Frame {
	var out []Frame
	for n := s.head; n != nil; n = n.next {
		out = append(out, n.frame)
	}
	return out
}

// Contains reports whether id already appears anywhere on the stack.
func (s Stack) Contains(id actorid.ActorID) bool {
	for n := s.head; n != nil; n = n.next {
		if n.frame.ActorID.Equal(id) {
			return true
		}
	}
	return false
}

// push returns a new Stack with f prepended; the receiver is untouched
// (the list is persistent), which is what lets every in-flight
// invocation hold its own stack value safely.
func (s Stack) push(f Frame) Stack {
	return Stack{head: &node{frame: f, next: s.head}}
}

func (s Stack) String() string {
	frames := s.Frames()
	parts := make([]string, len(frames))
	// Render oldest-first for readability in logs/error messages.
	for i, f := range frames {
		parts[len(frames)-1-i] = f.ActorID.String()
	}
	return strings.Join(parts, " -> ")
}

type ctxKey struct{}

// FromContext returns the calling stack attached to ctx, or the empty
// stack if none has been attached yet (a brand new top-level
// invocation).
func FromContext(ctx context.Context) Stack {
	if s, ok := ctx.Value(ctxKey{}).(Stack); ok {
		return s
	}
	return Empty()
}

// withStack scopes s as the calling stack for the returned context.
// Context values are scoped to the context tree rooted at this call,
// so the stack is accessible synchronously from any frame of the same
// logical invocation but never leaks across invocations.
func withStack(ctx context.Context, s Stack) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Enter pushes target onto the calling stack carried by ctx and returns
// the context scoped to the new stack, ready to be passed down to the
// nested invocation. It enforces:
//
//   - target must not already be on the stack (ring detection);
//   - a Native caller must never call into a Guest target: only a
//     bare top-level call (no caller frame) may enter sandboxed code,
//     so control flow can never cross into a guest through a trusted
//     intermediary.
//
// On success it returns the new context and a nil error; on failure it
// returns ctx unchanged and the violation as a *errs.CoreError.
func Enter(ctx context.Context, target actorid.ActorID, kind actorid.Kind) (context.Context, error) {
	s := FromContext(ctx)

	if s.Contains(target) {
		return ctx, errs.New(errs.KindRingInvocation, "%s: full stack: %s -> %s", target, s.String(), target)
	}

	if top, ok := s.Top(); ok && top.Kind == actorid.KindNative && kind == actorid.KindGuest {
		return ctx, errs.New(errs.KindNativeActorCallingWasm, "native actor %s calling guest actor %s", top.ActorID, target)
	}

	next := s.push(Frame{ActorID: target, Kind: kind})
	return withStack(ctx, next), nil
}
