package repo

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ngram-lm/expgram/bitvector"
	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/packedvec"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
)

func float32Bits(v float32) uint32     { return math.Float32bits(v) }
func float32FromBits(b uint32) float32 { return math.Float32frombits(b) }

// SaveShard writes a trie.Shard to dir as three files: "index" (the packed
// id vector), "position" (the succinct bit vector), and "prop.list" (the
// per-order Offsets boundaries), per spec.md §6.1.
func SaveShard(dir string, s *trie.Shard) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.IOError, "SaveShard", err)
	}

	p := NewPropList()
	p.SetInt("order", int64(len(s.Offsets)-1))
	for i, off := range s.Offsets {
		p.SetInt(fmt.Sprintf("%d-gram-offset", i), int64(off))
	}
	if err := p.Save(filepath.Join(dir, "prop.list")); err != nil {
		return err
	}

	if err := writePackedVector(filepath.Join(dir, "index"), s.IDs); err != nil {
		return err
	}
	return writeBitVector(filepath.Join(dir, "position"), s.Positions)
}

// LoadShard reads a trie.Shard previously written by SaveShard.
func LoadShard(dir string) (*trie.Shard, error) {
	p, err := LoadPropList(filepath.Join(dir, "prop.list"))
	if err != nil {
		return nil, err
	}
	order, err := p.GetInt("order")
	if err != nil {
		return nil, err
	}
	offsets := make([]uint64, order+1)
	for i := range offsets {
		v, err := p.GetInt(fmt.Sprintf("%d-gram-offset", i))
		if err != nil {
			return nil, err
		}
		offsets[i] = uint64(v)
	}

	ids, err := readPackedVector(filepath.Join(dir, "index"))
	if err != nil {
		return nil, err
	}
	positions, err := readBitVector(filepath.Join(dir, "position"))
	if err != nil {
		return nil, err
	}

	shard := &trie.Shard{IDs: ids, Positions: positions, Offsets: offsets}
	if err := shard.Validate(); err != nil {
		return nil, err
	}
	return shard, nil
}

// packed vector on-disk layout: uint32 length, uint32 width, then the
// little-endian uint64 words.
func writePackedVector(path string, v *packedvec.Vector) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "writePackedVector", err)
	}
	defer f.Close()

	var head [8]byte
	n, width := 0, uint(1)
	if v != nil {
		n, width = v.Len(), v.Width()
	}
	binary.LittleEndian.PutUint32(head[0:4], uint32(n))
	binary.LittleEndian.PutUint32(head[4:8], uint32(width))
	if _, err := f.Write(head[:]); err != nil {
		return errs.New(errs.IOError, "writePackedVector", err)
	}
	if v == nil {
		return nil
	}
	for _, w := range v.Bytes() {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], w)
		if _, err := f.Write(buf[:]); err != nil {
			return errs.New(errs.IOError, "writePackedVector", err)
		}
	}
	return nil
}

func readPackedVector(path string) (*packedvec.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "readPackedVector", err)
	}
	if len(data) < 8 {
		return nil, errs.New(errs.CorruptIndex, "readPackedVector", fmt.Errorf("truncated header in %s", path))
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	width := binary.LittleEndian.Uint32(data[4:8])
	if n == 0 {
		return packedvec.New(0, 1), nil
	}
	body := data[8:]
	words := make([]uint64, len(body)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(body[i*8:])
	}
	return packedvec.FromBytes(words, int(n), uint(width)), nil
}

// succinct bit vector on-disk layout: uint32 bit length, then the
// little-endian uint64 words of its backing store (rebuilt on load).
func writeBitVector(path string, v *bitvector.Vector) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "writeBitVector", err)
	}
	defer f.Close()

	n := 0
	if v != nil {
		n = v.Size()
	}
	var head [4]byte
	binary.LittleEndian.PutUint32(head[:], uint32(n))
	if _, err := f.Write(head[:]); err != nil {
		return errs.New(errs.IOError, "writeBitVector", err)
	}
	if v == nil {
		return nil
	}
	numWords := (n + 63) / 64
	for i := 0; i < numWords; i++ {
		var word uint64
		for b := 0; b < 64 && i*64+b < n; b++ {
			if v.Get(i*64 + b) {
				word |= 1 << uint(b)
			}
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], word)
		if _, err := f.Write(buf[:]); err != nil {
			return errs.New(errs.IOError, "writeBitVector", err)
		}
	}
	return nil
}

func readBitVector(path string) (*bitvector.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "readBitVector", err)
	}
	if len(data) < 4 {
		return nil, errs.New(errs.CorruptIndex, "readBitVector", fmt.Errorf("truncated header in %s", path))
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	v := bitvector.New(n)
	body := data[4:]
	for i := 0; i < n; i++ {
		word := i / 64
		bit := i % 64
		if word*8+8 > len(body) {
			break
		}
		w := binary.LittleEndian.Uint64(body[word*8:])
		if w&(1<<uint(bit)) != 0 {
			v.Set(i, true)
		}
	}
	v.Build()
	return v, nil
}

// LoadFloatArray reads a raw packed float32 array from a model section
// directory's "values" file (spec.md §6.1: "raw packed floats").
func LoadFloatArray(dir string) (*query.ModelArray, error) {
	path := filepath.Join(dir, "values")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "LoadFloatArray", err)
	}
	n := len(data) / 4
	values := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		values[i] = float32FromBits(bits)
	}
	return query.NewModelArray(values), nil
}

// SaveFloatArray writes values as dir/values, little-endian IEEE-754
// binary32, per spec.md §6.1's "raw packed floats" schema.
func SaveFloatArray(dir string, values []float32) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.IOError, "SaveFloatArray", err)
	}
	f, err := os.Create(filepath.Join(dir, "values"))
	if err != nil {
		return errs.New(errs.IOError, "SaveFloatArray", err)
	}
	defer f.Close()

	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], float32Bits(v))
	}
	if _, err := f.Write(buf); err != nil {
		return errs.New(errs.IOError, "SaveFloatArray", err)
	}
	return nil
}

// LoadCountArray reads a raw packed uint64 array from a SectionCount or
// SectionType directory's "values" file (spec.md §6.1: the per-node raw
// and modified ("type") count arrays build.Pipeline.Finish produces
// alongside the trie itself).
func LoadCountArray(dir string) ([]uint64, error) {
	path := filepath.Join(dir, "values")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "LoadCountArray", err)
	}
	n := len(data) / 8
	counts := make([]uint64, n)
	for i := 0; i < n; i++ {
		counts[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return counts, nil
}

// SaveCountArray writes counts as dir/values, little-endian uint64,
// mirroring SaveFloatArray's framing for the count/type sections.
func SaveCountArray(dir string, counts []uint64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.IOError, "SaveCountArray", err)
	}
	f, err := os.Create(filepath.Join(dir, "values"))
	if err != nil {
		return errs.New(errs.IOError, "SaveCountArray", err)
	}
	defer f.Close()

	buf := make([]byte, 8*len(counts))
	for i, v := range counts {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	if _, err := f.Write(buf); err != nil {
		return errs.New(errs.IOError, "SaveCountArray", err)
	}
	return nil
}
