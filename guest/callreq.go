package guest

import (
	"encoding/binary"
	"fmt"

	"github.com/actorxio/actorx/actorid"
)

// The req blob of a Call operation names the target actor, the
// operation, and the opaque payload. The same envelope is used in both
// directions: host->guest for an inbound invocation (target is the
// guest itself) and guest->host for a nested call the guest wants the
// host to perform. Layout: u64_le-length-prefixed RegistrationID,
// 16 raw InstanceID bytes, u64_le-length-prefixed operation name, then
// the payload as the remainder.

func encodeCallReq(target actorid.ActorID, operation string, payload []byte) []byte {
	reg := target.RegID.Bytes()
	op := []byte(operation)
	inst := target.Instance.Bytes()

	buf := make([]byte, 0, 8+len(reg)+16+8+len(op)+len(payload))
	lenBuf := make([]byte, 8)

	binary.LittleEndian.PutUint64(lenBuf, uint64(len(reg)))
	buf = append(buf, lenBuf...)
	buf = append(buf, reg...)

	buf = append(buf, inst[:]...)

	binary.LittleEndian.PutUint64(lenBuf, uint64(len(op)))
	buf = append(buf, lenBuf...)
	buf = append(buf, op...)

	buf = append(buf, payload...)
	return buf
}

func decodeCallReq(raw []byte) (target actorid.ActorID, operation string, payload []byte, err error) {
	if len(raw) < 8 {
		return actorid.ActorID{}, "", nil, fmt.Errorf("guest: truncated call target length")
	}
	regLen := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]
	if uint64(len(raw)) < regLen+16+8 {
		return actorid.ActorID{}, "", nil, fmt.Errorf("guest: truncated call target")
	}
	reg := actorid.NewRegistrationID(raw[:regLen])
	raw = raw[regLen:]

	var inst [16]byte
	copy(inst[:], raw[:16])
	raw = raw[16:]

	opLen := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]
	if uint64(len(raw)) < opLen {
		return actorid.ActorID{}, "", nil, fmt.Errorf("guest: truncated call operation")
	}
	operation = string(raw[:opLen])
	payload = raw[opLen:]

	return actorid.New(reg, actorid.InstanceIDFromBytes(inst)), operation, payload, nil
}
