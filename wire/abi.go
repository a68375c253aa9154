package wire

import "encoding/binary"

// ABIRecordSize is the fixed byte size of the in-guest ABI record:
//
//	{ u8 flag, u32 data_0, u32 len_0, u32 data_1, u32 len_1 }
const ABIRecordSize = 1 + 4 + 4 + 4 + 4

// ABIRecord is the decoded form of the fixed-size record shared between
// the worker driver and the guest. data_0/data_1 are guest-memory
// offsets; the actual bytes live in guest linear memory at those
// offsets and are read/written separately by whatever owns the guest's
// api.Memory (internal/guestrt), since this package has no notion of
// guest memory.
type ABIRecord struct {
	Flag  Opcode
	Data0 uint32
	Len0  uint32
	Data1 uint32
	Len1  uint32
}

// NewUninitializedABIRecord returns the record value used before init()
// has populated any buffers.
func NewUninitializedABIRecord() ABIRecord {
	return ABIRecord{Flag: opUninitialized}
}

// IsUninitialized reports whether flag is the sentinel "not yet set"
// value (3).
func (r ABIRecord) IsUninitialized() bool {
	return r.Flag == opUninitialized
}

// EncodeABIRecord renders r into ABIRecordSize bytes, ready to be
// written into guest linear memory at the address returned by init().
func EncodeABIRecord(r ABIRecord) []byte {
	buf := make([]byte, ABIRecordSize)
	buf[0] = byte(r.Flag)
	binary.LittleEndian.PutUint32(buf[1:5], r.Data0)
	binary.LittleEndian.PutUint32(buf[5:9], r.Len0)
	binary.LittleEndian.PutUint32(buf[9:13], r.Data1)
	binary.LittleEndian.PutUint32(buf[13:17], r.Len1)
	return buf
}

// DecodeABIRecord parses ABIRecordSize bytes read back from guest
// linear memory into an ABIRecord.
func DecodeABIRecord(buf []byte) (ABIRecord, bool) {
	if len(buf) < ABIRecordSize {
		return ABIRecord{}, false
	}
	return ABIRecord{
		Flag:  Opcode(buf[0]),
		Data0: binary.LittleEndian.Uint32(buf[1:5]),
		Len0:  binary.LittleEndian.Uint32(buf[5:9]),
		Data1: binary.LittleEndian.Uint32(buf[9:13]),
		Len1:  binary.LittleEndian.Uint32(buf[13:17]),
	}, true
}

// OperationToABIBuffers returns the flag and the raw byte buffers that
// must be written into guest memory at Data0/Data1 for the given
// Operation: two blobs for Call, one for ReturnOk, one
// serialized-error blob for ReturnErr.
func OperationToABIBuffers(op Operation) (flag Opcode, buf0, buf1 []byte) {
	switch op.Op {
	case OpCall:
		return OpCall, op.Ctx, op.Req
	case OpReturnOk:
		return OpReturnOk, op.Resp, nil
	case OpReturnErr:
		return OpReturnErr, encodeCoreError(op.Err), nil
	default:
		return opUninitialized, nil, nil
	}
}

// ABIBuffersToOperation is the inverse of OperationToABIBuffers: given
// the flag and the bytes read back from Data0/Data1, reconstruct the
// Operation the guest produced.
func ABIBuffersToOperation(flag Opcode, buf0, buf1 []byte) (Operation, error) {
	switch flag {
	case OpCall:
		return Call(buf0, buf1), nil
	case OpReturnOk:
		return ReturnOk(buf0), nil
	case OpReturnErr:
		ce, err := decodeCoreError(buf0)
		if err != nil {
			return Operation{}, err
		}
		return ReturnErr(ce), nil
	default:
		return Operation{}, nil
	}
}
