package codec

import (
	"fmt"

	"github.com/golang/snappy"
)

// Snappy is a stateless alternate block codec, offered alongside Zstd to
// exercise the pluggable codec interface with a second real backend (see
// SPEC_FULL.md §2.2).
type Snappy struct{}

func NewSnappy() *Snappy { return &Snappy{} }

func (s *Snappy) Name() string { return "snappy-block" }

func (s *Snappy) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (s *Snappy) Decompress(src []byte, sizeHint int) ([]byte, error) {
	var dst []byte
	if sizeHint > 0 {
		dst = make([]byte, 0, sizeHint)
	}
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	return out, nil
}
