// Package vocab implements the persistent string<->id vocabulary shared by
// every trie shard (spec.md §3, "Vocabulary"). Word ids are dense,
// zero-based, and stable across rebuilds of the same corpus as long as
// words are inserted in the same order; three ids are reserved up front for
// the sentence boundary and unknown-word markers.
//
// The on-disk length-prefixed record layout is grounded on
// indexmeta.Meta's MarshalBinary/UnmarshalWithDecoder (byte-length-prefixed
// key/value records), generalized from indexmeta's 255-entry, 255-byte-key
// metadata table to an unbounded list of words with uint32 length prefixes.
package vocab

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ngram-lm/expgram/errs"
)

// ID identifies a word in a Vocab.
type ID uint32

// Reserved word ids, always present at the same position in every Vocab.
const (
	BOS ID = 0 // <s>
	EOS ID = 1 // </s>
	UNK ID = 2 // <unk>
)

const (
	bosWord = "<s>"
	eosWord = "</s>"
	unkWord = "<unk>"
)

// Vocab is a bijection between word strings and dense ids. It is safe for
// concurrent reads; Insert must not race with any read or other Insert.
type Vocab struct {
	words []string
	ids   map[string]ID
}

// New creates a Vocab pre-populated with the reserved BOS/EOS/UNK entries.
func New() *Vocab {
	v := &Vocab{
		words: make([]string, 0, 3),
		ids:   make(map[string]ID, 3),
	}
	v.words = append(v.words, bosWord, eosWord, unkWord)
	v.ids[bosWord] = BOS
	v.ids[eosWord] = EOS
	v.ids[unkWord] = UNK
	return v
}

// Len returns the number of distinct words, including the three reserved
// entries.
func (v *Vocab) Len() int { return len(v.words) }

// Lookup returns the id for word, or (UNK, false) if it is not present.
func (v *Vocab) Lookup(word string) (ID, bool) {
	id, ok := v.ids[word]
	if !ok {
		return UNK, false
	}
	return id, true
}

// Word returns the string for id. Panics if id is out of range.
func (v *Vocab) Word(id ID) string {
	return v.words[id]
}

// Insert returns the id for word, assigning a new one if word has not been
// seen before.
func (v *Vocab) Insert(word string) ID {
	if id, ok := v.ids[word]; ok {
		return id
	}
	id := ID(len(v.words))
	v.words = append(v.words, word)
	v.ids[word] = id
	return id
}

// Save writes the vocabulary as a length-prefixed record stream.
func (v *Vocab) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "vocab.Save", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v.words)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.New(errs.IOError, "vocab.Save", err)
	}
	for _, word := range v.words {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(word)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return errs.New(errs.IOError, "vocab.Save", err)
		}
		if _, err := io.WriteString(w, word); err != nil {
			return errs.New(errs.IOError, "vocab.Save", err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.New(errs.IOError, "vocab.Save", err)
	}
	return nil
}

// Load reads a vocabulary previously written by Save.
func Load(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "vocab.Load", err)
	}
	defer f.Close()
	return loadFrom(bufio.NewReader(f))
}

func loadFrom(r *bufio.Reader) (*Vocab, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errs.New(errs.CorruptIndex, "vocab.Load", err)
	}
	count := binary.LittleEndian.Uint32(lenBuf[:])

	v := &Vocab{
		words: make([]string, 0, count),
		ids:   make(map[string]ID, count),
	}
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, errs.New(errs.CorruptIndex, "vocab.Load", err)
		}
		wlen := binary.LittleEndian.Uint32(lenBuf[:])
		buf := make([]byte, wlen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errs.New(errs.CorruptIndex, "vocab.Load", err)
		}
		word := string(buf)
		v.words = append(v.words, word)
		v.ids[word] = ID(i)
	}
	if len(v.words) < 3 || v.words[BOS] != bosWord || v.words[EOS] != eosWord || v.words[UNK] != unkWord {
		return nil, errs.New(errs.CorruptIndex, "vocab.Load", fmt.Errorf("missing reserved word ids"))
	}
	return v, nil
}

// SaveGoogle writes the vocabulary in the Google n-gram on-disk layout:
// gzip-compressed, one "word\tcount" line per entry (spec.md §6.3). count
// is supplied per word since raw unigram frequency is not tracked by Vocab
// itself; callers pass the frequencies gathered during count accumulation.
func SaveGoogle(path string, v *Vocab, counts []uint64) error {
	if len(counts) != len(v.words) {
		return errs.New(errs.Numeric, "vocab.SaveGoogle", fmt.Errorf("counts length %d != vocab length %d", len(counts), len(v.words)))
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "vocab.SaveGoogle", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for i, word := range v.words {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", word, counts[i]); err != nil {
			return errs.New(errs.IOError, "vocab.SaveGoogle", err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.New(errs.IOError, "vocab.SaveGoogle", err)
	}
	if err := gz.Close(); err != nil {
		return errs.New(errs.IOError, "vocab.SaveGoogle", err)
	}
	return nil
}

// LoadGoogle reads a 1gms/vocab.gz file in the Google n-gram layout,
// returning a fresh Vocab (with the reserved ids still first) and the
// parsed per-word counts in the same order as Vocab.Word ids.
func LoadGoogle(path string) (*Vocab, []uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errs.New(errs.IOError, "vocab.LoadGoogle", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, errs.New(errs.CorruptIndex, "vocab.LoadGoogle", err)
	}
	defer gz.Close()

	v := New()
	counts := make([]uint64, 3)

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		tab := -1
		for i := len(line) - 1; i >= 0; i-- {
			if line[i] == '\t' {
				tab = i
				break
			}
		}
		if tab < 0 {
			return nil, nil, errs.New(errs.CorruptIndex, "vocab.LoadGoogle", fmt.Errorf("malformed line %q", line))
		}
		word := line[:tab]
		var count uint64
		if _, err := fmt.Sscanf(line[tab+1:], "%d", &count); err != nil {
			return nil, nil, errs.New(errs.CorruptIndex, "vocab.LoadGoogle", err)
		}
		if id, ok := v.ids[word]; ok {
			counts[id] = count
			continue
		}
		v.Insert(word)
		counts = append(counts, count)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errs.New(errs.IOError, "vocab.LoadGoogle", err)
	}
	return v, counts, nil
}
