// Package sign implements the guest-binary signature envelope:
// embedding a signed Metadata blob as a custom WebAssembly section and
// verifying it back out.
package sign

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/actorxio/actorx/actorid"
)

// ClaimKind distinguishes the two Claim variants.
type ClaimKind uint8

const (
	ClaimActorAccess ClaimKind = iota
	ClaimTokenID
)

// Claim is one access right embedded in a guest's signed Metadata.
type Claim struct {
	Kind ClaimKind
	// ActorAccessRegID is set when Kind == ClaimActorAccess.
	ActorAccessRegID actorid.RegistrationID
	// TokenID is set when Kind == ClaimTokenID; an opaque H160-sized
	// (20-byte) binding to an external identity, carried but never
	// interpreted by the core.
	TokenID [20]byte
}

// ActorAccess builds a Claim granting the guest the right to call
// actors registered under regID.
func ActorAccess(regID actorid.RegistrationID) Claim {
	return Claim{Kind: ClaimActorAccess, ActorAccessRegID: regID}
}

// TokenIDClaim builds an opaque TokenId claim.
func TokenIDClaim(h160 [20]byte) Claim {
	return Claim{Kind: ClaimTokenID, TokenID: h160}
}

// Metadata is embedded in every guest binary: its identity, the
// signer's public key, and its ordered claims.
type Metadata struct {
	RegID     actorid.RegistrationID
	SignerKey ed25519.PublicKey
	Claims    []Claim
}

// HasActorAccess reports whether m's claims grant access to target.
func (m Metadata) HasActorAccess(target actorid.RegistrationID) bool {
	for _, c := range m.Claims {
		if c.Kind == ClaimActorAccess && c.ActorAccessRegID == target {
			return true
		}
	}
	return false
}

// Metatoken is the versioned envelope stored (compressed) in the custom
// WASM section: a format version, the encoded Metadata, and the
// signature over (file header ‖ file tail ‖ metadata bytes).
type Metatoken struct {
	Version   uint32
	Payload   []byte // encoded Metadata
	Signature []byte
}

const metatokenVersion1 = 1

// EncodeMetadata renders m in the same binary encoding Sign embeds in a
// guest's signature section, for callers (internal/workerpool's worker
// handshake) that need to carry a Metadata value across a boundary
// other than the signed WASM section itself.
func EncodeMetadata(m Metadata) []byte { return encodeMetadata(m) }

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(raw []byte) (Metadata, error) { return decodeMetadata(raw) }

// encodeMetadata is the hand-rolled binary encoding for Metadata,
// matching the rest of this codebase's wire format (see wire package):
// no generic serialization library is used for a format whose byte
// layout is itself part of the signed contract.
func encodeMetadata(m Metadata) []byte {
	buf := appendBlob(nil, m.RegID.Bytes())
	buf = appendBlob(buf, []byte(m.SignerKey))

	claimsLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(claimsLen, uint64(len(m.Claims)))
	buf = append(buf, claimsLen...)

	for _, c := range m.Claims {
		buf = append(buf, byte(c.Kind))
		switch c.Kind {
		case ClaimActorAccess:
			buf = appendBlob(buf, c.ActorAccessRegID.Bytes())
		case ClaimTokenID:
			buf = append(buf, c.TokenID[:]...)
		}
	}
	return buf
}

func decodeMetadata(raw []byte) (Metadata, error) {
	regIDBytes, rest, err := readBlob(raw)
	if err != nil {
		return Metadata{}, fmt.Errorf("sign: decoding metadata regID: %w", err)
	}
	signerKeyBytes, rest, err := readBlob(rest)
	if err != nil {
		return Metadata{}, fmt.Errorf("sign: decoding metadata signer key: %w", err)
	}
	if len(rest) < 8 {
		return Metadata{}, fmt.Errorf("sign: truncated metadata claim count")
	}
	numClaims := binary.LittleEndian.Uint64(rest[:8])
	rest = rest[8:]

	claims := make([]Claim, 0, numClaims)
	for i := uint64(0); i < numClaims; i++ {
		if len(rest) < 1 {
			return Metadata{}, fmt.Errorf("sign: truncated claim kind")
		}
		kind := ClaimKind(rest[0])
		rest = rest[1:]

		var c Claim
		c.Kind = kind
		switch kind {
		case ClaimActorAccess:
			var regBytes []byte
			regBytes, rest, err = readBlob(rest)
			if err != nil {
				return Metadata{}, fmt.Errorf("sign: decoding claim regID: %w", err)
			}
			c.ActorAccessRegID = actorid.NewRegistrationID(regBytes)
		case ClaimTokenID:
			if len(rest) < 20 {
				return Metadata{}, fmt.Errorf("sign: truncated token claim")
			}
			copy(c.TokenID[:], rest[:20])
			rest = rest[20:]
		default:
			return Metadata{}, fmt.Errorf("sign: unknown claim kind %d", kind)
		}
		claims = append(claims, c)
	}

	return Metadata{
		RegID:     actorid.NewRegistrationID(regIDBytes),
		SignerKey: ed25519.PublicKey(signerKeyBytes),
		Claims:    claims,
	}, nil
}

func appendBlob(buf, b []byte) []byte {
	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, uint64(len(b)))
	buf = append(buf, lenBuf...)
	buf = append(buf, b...)
	return buf
}

func readBlob(raw []byte) (blob, rest []byte, err error) {
	if len(raw) < 8 {
		return nil, nil, fmt.Errorf("short blob length")
	}
	n := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]
	if uint64(len(raw)) < n {
		return nil, nil, fmt.Errorf("truncated blob body")
	}
	return raw[:n], raw[n:], nil
}
