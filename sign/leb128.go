package sign

// Minimal unsigned LEB128 codec for the WebAssembly custom-section
// header (section id, size, and name-length fields all use this
// encoding in the binary format). No pack repository parses raw WASM
// sections, so this is hand-rolled in the same "explicit byte-level
// codec" idiom as package wire.

func putUvarint32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			break
		}
	}
	return buf
}

func readUvarint32(buf []byte) (v uint32, n int, ok bool) {
	var shift uint
	for i, b := range buf {
		if shift >= 32 {
			return 0, 0, false
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, true
		}
		shift += 7
	}
	return 0, 0, false
}
