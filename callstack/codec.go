package callstack

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/actorxio/actorx/actorid"
)

// The calling stack crosses the wire in the ctx field of every Call
// operation, so a worker-hosted guest's nested calls re-enter the host
// with the full invocation path intact. Layout: u64_le frame count,
// then per frame (newest first) a u64_le-length-prefixed RegistrationID,
// 16 raw InstanceID bytes, and one Kind byte.

// Encode renders the stack for the wire, newest frame first.
func (s Stack) Encode() []byte {
	frames := s.Frames()

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(len(frames)))

	lenBuf := make([]byte, 8)
	for _, f := range frames {
		reg := f.ActorID.RegID.Bytes()
		binary.LittleEndian.PutUint64(lenBuf, uint64(len(reg)))
		buf = append(buf, lenBuf...)
		buf = append(buf, reg...)
		inst := f.ActorID.Instance.Bytes()
		buf = append(buf, inst[:]...)
		buf = append(buf, byte(f.Kind))
	}
	return buf
}

// Decode is the inverse of Encode. An empty or nil input decodes to the
// empty stack, so a top-level Call with no caller context stays valid.
func Decode(raw []byte) (Stack, error) {
	if len(raw) == 0 {
		return Empty(), nil
	}
	if len(raw) < 8 {
		return Stack{}, fmt.Errorf("callstack: truncated frame count")
	}
	count := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]

	frames := make([]Frame, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(raw) < 8 {
			return Stack{}, fmt.Errorf("callstack: truncated frame %d length", i)
		}
		regLen := binary.LittleEndian.Uint64(raw[:8])
		raw = raw[8:]
		if uint64(len(raw)) < regLen+16+1 {
			return Stack{}, fmt.Errorf("callstack: truncated frame %d body", i)
		}
		reg := actorid.NewRegistrationID(raw[:regLen])
		raw = raw[regLen:]

		var inst [16]byte
		copy(inst[:], raw[:16])
		raw = raw[16:]

		kind := actorid.Kind(raw[0])
		raw = raw[1:]

		frames = append(frames, Frame{
			ActorID: actorid.New(reg, actorid.InstanceIDFromBytes(inst)),
			Kind:    kind,
		})
	}

	// Frames are encoded newest first; rebuild by pushing oldest first.
	s := Empty()
	for i := len(frames) - 1; i >= 0; i-- {
		s = s.push(frames[i])
	}
	return s, nil
}

// Attach scopes s as ctx's calling stack, used when an invocation
// re-enters this process carrying a stack decoded off the wire.
func Attach(ctx context.Context, s Stack) context.Context {
	return withStack(ctx, s)
}
