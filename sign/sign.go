package sign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/actorxio/actorx/errs"
)

// sectionName is the custom section's name. The leading 0x09 (a tab
// byte) is part of the name itself and makes it sort lexically before
// the conventional human-readable custom section names a toolchain
// might add later.
const sectionName = "\tSignature"

const preambleSize = 8 // 4-byte magic + 4-byte version, per the WASM binary format.

// Sign embeds md (with its SignerKey replaced by the public key derived
// from priv) into wasmBytes as a signed custom section and returns the
// resulting binary. wasmBytes must not already contain a signature
// section (Sign does not attempt to replace one).
func Sign(wasmBytes []byte, md Metadata, priv ed25519.PrivateKey, compressor Compressor) ([]byte, error) {
	if compressor == nil {
		compressor = DefaultCompressor
	}
	if len(wasmBytes) < preambleSize {
		return nil, fmt.Errorf("sign: wasm binary shorter than the %d-byte preamble", preambleSize)
	}

	md.SignerKey = priv.Public().(ed25519.PublicKey)

	head := wasmBytes[:preambleSize]
	tail := wasmBytes[preambleSize:]
	metadataBytes := encodeMetadata(md)

	digest := sha256.Sum256(concat(head, tail, metadataBytes))
	signature := ed25519.Sign(priv, digest[:])

	token := Metatoken{
		Version:   metatokenVersion1,
		Payload:   metadataBytes,
		Signature: signature,
	}
	tokenBytes := encodeMetatoken(token)

	compressed, err := compressor.Compress(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("sign: error compressing metatoken: %w", err)
	}

	section := encodeCustomSection(sectionName, compressed)

	out := make([]byte, 0, len(head)+len(section)+len(tail))
	out = append(out, head...)
	out = append(out, section...)
	out = append(out, tail...)
	return out, nil
}

// Verify extracts and validates the embedded Metadata from a signed
// wasm binary, returning errs.InvalidSignatureFormat if the section is
// missing or corrupt, and errs.SignatureMismatch if the signature does
// not validate against the embedded signer key.
func Verify(signedWasmBytes []byte) (Metadata, error) {
	return VerifyWithCompressor(signedWasmBytes, nil)
}

// VerifyWithCompressor is Verify with an explicit Compressor, for
// callers whose binaries were signed with a non-default codec.
func VerifyWithCompressor(signedWasmBytes []byte, compressor Compressor) (Metadata, error) {
	if compressor == nil {
		compressor = DefaultCompressor
	}
	if len(signedWasmBytes) < preambleSize {
		return Metadata{}, fmt.Errorf("%w: binary shorter than preamble", errs.InvalidSignatureFormat)
	}
	head := signedWasmBytes[:preambleSize]
	rest := signedWasmBytes[preambleSize:]

	name, payload, sectionLen, ok := decodeCustomSection(rest)
	if !ok || name != sectionName {
		return Metadata{}, fmt.Errorf("%w: missing or malformed %q section", errs.InvalidSignatureFormat, sectionName)
	}
	tail := rest[sectionLen:]

	tokenBytes, err := compressor.Decompress(payload)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: decompressing metatoken: %v", errs.InvalidSignatureFormat, err)
	}

	token, err := decodeMetatoken(tokenBytes)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: decoding metatoken: %v", errs.InvalidSignatureFormat, err)
	}

	md, err := decodeMetadata(token.Payload)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: decoding metadata: %v", errs.InvalidSignatureFormat, err)
	}
	if len(md.SignerKey) != ed25519.PublicKeySize {
		return Metadata{}, fmt.Errorf("%w: invalid signer key size", errs.InvalidSignatureFormat)
	}

	digest := sha256.Sum256(concat(head, tail, token.Payload))
	if !ed25519.Verify(md.SignerKey, digest[:], token.Signature) {
		return Metadata{}, fmt.Errorf("%w", errs.SignatureMismatch)
	}

	return md, nil
}

func concat(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}

func encodeMetatoken(t Metatoken) []byte {
	buf := make([]byte, 4)
	// version as 4 raw LE bytes (fixed-width, unlike the LEB128 used by
	// the WASM section header itself).
	buf[0] = byte(t.Version)
	buf[1] = byte(t.Version >> 8)
	buf[2] = byte(t.Version >> 16)
	buf[3] = byte(t.Version >> 24)
	buf = appendBlob(buf, t.Payload)
	buf = appendBlob(buf, t.Signature)
	return buf
}

func decodeMetatoken(raw []byte) (Metatoken, error) {
	if len(raw) < 4 {
		return Metatoken{}, fmt.Errorf("truncated metatoken version")
	}
	version := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	rest := raw[4:]

	payload, rest, err := readBlob(rest)
	if err != nil {
		return Metatoken{}, fmt.Errorf("decoding metatoken payload: %w", err)
	}
	signature, _, err := readBlob(rest)
	if err != nil {
		return Metatoken{}, fmt.Errorf("decoding metatoken signature: %w", err)
	}

	return Metatoken{Version: version, Payload: payload, Signature: signature}, nil
}

// encodeCustomSection builds a WASM custom section (id 0) with the
// given name and payload: id | LEB128(size) | LEB128(len(name)) | name | payload.
func encodeCustomSection(name string, payload []byte) []byte {
	var body []byte
	body = putUvarint32(body, uint32(len(name)))
	body = append(body, []byte(name)...)
	body = append(body, payload...)

	out := []byte{0x00} // custom section id
	out = putUvarint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

// decodeCustomSection parses a custom section located at the start of
// buf, returning its name, payload, and the total number of bytes
// (header + body) it occupies so the caller can compute the remaining
// "tail".
func decodeCustomSection(buf []byte) (name string, payload []byte, totalLen int, ok bool) {
	if len(buf) < 1 || buf[0] != 0x00 {
		return "", nil, 0, false
	}
	size, n, okSize := readUvarint32(buf[1:])
	if !okSize {
		return "", nil, 0, false
	}
	bodyStart := 1 + n
	bodyEnd := bodyStart + int(size)
	if bodyEnd > len(buf) {
		return "", nil, 0, false
	}
	body := buf[bodyStart:bodyEnd]

	nameLen, n2, okName := readUvarint32(body)
	if !okName || uint32(len(body)-n2) < nameLen {
		return "", nil, 0, false
	}
	name = string(body[n2 : n2+int(nameLen)])
	payload = body[n2+int(nameLen):]

	return name, payload, bodyEnd, true
}
