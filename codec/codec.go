// Package codec defines the pluggable block-compression interface used by
// blockstore, and ships two concrete implementations (zstd, snappy).
package codec

import "errors"

// Codec compresses and decompresses raw blocks of any size. Implementations
// must be deterministic: compressing the same bytes twice yields the same
// output, and decompress must round-trip any output of compress.
//
// Implementations are value types with cheap copy: a Codec held per worker
// goroutine should carry its own scratch buffers rather than share them, per
// spec.md §4.1 ("Codecs are stateful per-thread").
type Codec interface {
	// Name identifies the codec in an on-disk type tag, e.g. "zstd-block".
	Name() string
	Compress(src []byte) ([]byte, error)
	// Decompress decompresses src. sizeHint, if > 0, is used to
	// preallocate the destination buffer; it is advisory only.
	Decompress(src []byte, sizeHint int) ([]byte, error)
}

// ErrCorruptBlock is returned by Decompress when the input cannot be
// recovered into a valid block. Callers wrap it with errs.CorruptBlock
// rather than returning zeroed bytes.
var ErrCorruptBlock = errors.New("corrupt block: decompress failed")

// BlockSize is the raw (uncompressed) payload size of one block, per
// spec.md §4.2.
const BlockSize = 8 * 1024

// ByName returns the registered codec for a given on-disk type tag, or
// false if unknown.
func ByName(name string) (Codec, bool) {
	switch name {
	case (&Zstd{}).Name():
		return NewZstd(), true
	case (&Snappy{}).Name():
		return NewSnappy(), true
	default:
		return nil, false
	}
}
