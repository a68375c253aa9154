package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/actorxio/actorx/errs"
)

// Frame is a decoded stream frame: an Operation plus the channel it
// belongs to and the guest's remaining gas balance as of this frame.
type Frame struct {
	ChannelID uint64
	Gas       uint64
	Op        Operation
}

// EncodeFrame writes a frame to w as:
//
//	u8 opcode | u64_le channel_id | u64_le gas | body
//
// where body is a sequence of length-prefixed (u64_le length) blobs:
// two blobs for Call, one for ReturnOk, one (the serialized error) for
// ReturnErr.
func EncodeFrame(w io.Writer, f Frame) error {
	hdr := make([]byte, 1+8+8)
	hdr[0] = byte(f.Op.Op)
	binary.LittleEndian.PutUint64(hdr[1:9], f.ChannelID)
	binary.LittleEndian.PutUint64(hdr[9:17], f.Gas)
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("wire: error writing frame header: %w", err)
	}

	switch f.Op.Op {
	case OpCall:
		if err := writeBlob(w, f.Op.Ctx); err != nil {
			return err
		}
		if err := writeBlob(w, f.Op.Req); err != nil {
			return err
		}
	case OpReturnOk:
		if err := writeBlob(w, f.Op.Resp); err != nil {
			return err
		}
	case OpReturnErr:
		if err := writeBlob(w, encodeCoreError(f.Op.Err)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("wire: %w: unknown opcode %d", errs.BadWorkerOutput, f.Op.Op)
	}
	return nil
}

// DecodeFrame reads one frame from r. A read that doesn't complete a
// full frame before ctx-level timeouts elsewhere in the stack is the
// caller's concern; DecodeFrame itself just blocks on r.Read the way
// io.ReadFull does.
func DecodeFrame(r io.Reader) (Frame, error) {
	hdr := make([]byte, 1+8+8)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, err
	}
	f := Frame{
		ChannelID: binary.LittleEndian.Uint64(hdr[1:9]),
		Gas:       binary.LittleEndian.Uint64(hdr[9:17]),
	}
	opcode := Opcode(hdr[0])

	switch opcode {
	case OpCall:
		ctx, err := readBlob(r)
		if err != nil {
			return Frame{}, err
		}
		req, err := readBlob(r)
		if err != nil {
			return Frame{}, err
		}
		f.Op = Call(ctx, req)
	case OpReturnOk:
		resp, err := readBlob(r)
		if err != nil {
			return Frame{}, err
		}
		f.Op = ReturnOk(resp)
	case OpReturnErr:
		raw, err := readBlob(r)
		if err != nil {
			return Frame{}, err
		}
		ce, err := decodeCoreError(raw)
		if err != nil {
			return Frame{}, fmt.Errorf("wire: %w: %v", errs.BadWorkerOutput, err)
		}
		f.Op = ReturnErr(ce)
	default:
		// Unknown opcodes are a hard framing error: the worker must be
		// torn down, not just this one call failed.
		return Frame{}, fmt.Errorf("wire: %w: unknown opcode %d", errs.BadWorkerOutput, opcode)
	}

	return f, nil
}

func writeBlob(w io.Writer, b []byte) error {
	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, uint64(len(b)))
	if _, err := w.Write(lenBuf); err != nil {
		return fmt.Errorf("wire: error writing blob length: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("wire: error writing blob body: %w", err)
	}
	return nil
}

func readBlob(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 8)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf)
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// encodeCoreError renders an error as a length-prefixed pair of
// strings (kind, detail), consistent with the rest of the hand-rolled
// wire format.
func encodeCoreError(ce *errs.CoreError) []byte {
	if ce == nil {
		ce = &errs.CoreError{}
	}
	kind := []byte(ce.Kind)
	detail := []byte(ce.Detail)

	buf := make([]byte, 0, 8+len(kind)+8+len(detail))
	lenBuf := make([]byte, 8)

	binary.LittleEndian.PutUint64(lenBuf, uint64(len(kind)))
	buf = append(buf, lenBuf...)
	buf = append(buf, kind...)

	binary.LittleEndian.PutUint64(lenBuf, uint64(len(detail)))
	buf = append(buf, lenBuf...)
	buf = append(buf, detail...)

	return buf
}

func decodeCoreError(raw []byte) (*errs.CoreError, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("short error payload")
	}
	kindLen := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]
	if uint64(len(raw)) < kindLen {
		return nil, fmt.Errorf("truncated error kind")
	}
	kind := errs.Kind(raw[:kindLen])
	raw = raw[kindLen:]

	if len(raw) < 8 {
		return nil, fmt.Errorf("short error payload detail length")
	}
	detailLen := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]
	if uint64(len(raw)) < detailLen {
		return nil, fmt.Errorf("truncated error detail")
	}
	detail := string(raw[:detailLen])

	return &errs.CoreError{Kind: kind, Detail: detail}, nil
}
