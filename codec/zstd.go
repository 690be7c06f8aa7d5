package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd is the default block codec. Encoders and decoders are pooled per
// instance: klauspost/compress encoders/decoders are not safe for
// concurrent use by multiple goroutines, so each Zstd value lazily owns one
// of each, matching the teacher's pooled-codec-handle pattern (go.mod's
// mostynb/zstdpool-freelist exists for exactly this reason; we pool at the
// Codec-value granularity instead of a separate freelist package since one
// encoder/decoder per per-thread Codec copy is already the right lifetime).
type Zstd struct {
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewZstd() *Zstd { return &Zstd{} }

func (z *Zstd) Name() string { return "zstd-block" }

func (z *Zstd) encoder() (*zstd.Encoder, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.enc == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		z.enc = enc
	}
	return z.enc, nil
}

func (z *Zstd) decoder() (*zstd.Decoder, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.dec == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		z.dec = dec
	}
	return z.dec, nil
}

func (z *Zstd) Compress(src []byte) ([]byte, error) {
	enc, err := z.encoder()
	if err != nil {
		return nil, fmt.Errorf("zstd: create encoder: %w", err)
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	return enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

func (z *Zstd) Decompress(src []byte, sizeHint int) ([]byte, error) {
	dec, err := z.decoder()
	if err != nil {
		return nil, fmt.Errorf("zstd: create decoder: %w", err)
	}
	var dst []byte
	if sizeHint > 0 {
		dst = make([]byte, 0, sizeHint)
	}
	z.mu.Lock()
	out, err := dec.DecodeAll(src, dst)
	z.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	return out, nil
}
