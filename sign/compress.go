package sign

import "github.com/klauspost/compress/zstd"

// Compressor compresses/decompresses the Metatoken bytes before/after
// they're spliced into the WASM custom section. The section payload is
// zstd on the wire; the interface exists so callers with special needs
// can substitute their own codec via Sign/VerifyWithCompressor.
type Compressor interface {
	Compress(raw []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// zstdCompressor is the production codec. Under EncodeAll/DecodeAll the
// encoder and decoder hold no per-call state and are safe for
// concurrent use.
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCompressor() zstdCompressor {
	// With no options these constructors cannot fail.
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return zstdCompressor{enc: enc, dec: dec}
}

func (c zstdCompressor) Compress(raw []byte) ([]byte, error) {
	return c.enc.EncodeAll(raw, nil), nil
}

func (c zstdCompressor) Decompress(compressed []byte) ([]byte, error) {
	return c.dec.DecodeAll(compressed, nil)
}

// DefaultCompressor is used when Sign/Verify are not given an explicit
// Compressor.
var DefaultCompressor Compressor = newZstdCompressor()
