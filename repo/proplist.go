// Package repo implements the on-disk repository layout (spec.md §6.1):
// the prop.list key-value metadata format and the directory structure
// tying vocab, trie shards, and model arrays (logprob/backoff/logbound)
// together into a repository LoadEngine turns into a query.Engine.
//
// prop.list has no precedent in the pack (no example repo ships a flat
// key-value config format — see DESIGN.md's standard-library
// justification): it is a deliberately minimal tab-separated "key\tvalue"
// text file, one entry per line, chosen for human-readability when
// inspecting a repository by hand.
package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ngram-lm/expgram/errs"
)

// PropList is an ordered key-value list persisted as prop.list.
type PropList struct {
	keys   []string
	values map[string]string
}

// NewPropList creates an empty PropList.
func NewPropList() *PropList {
	return &PropList{values: make(map[string]string)}
}

// Set stores key=value, appending key to the iteration order if new.
func (p *PropList) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// SetInt is a convenience wrapper for integer-valued properties.
func (p *PropList) SetInt(key string, value int64) {
	p.Set(key, strconv.FormatInt(value, 10))
}

// Get returns the string value for key.
func (p *PropList) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// GetInt returns the integer value for key.
func (p *PropList) GetInt(key string) (int64, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, errs.New(errs.IOError, "PropList.GetInt", fmt.Errorf("missing key %q", key))
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errs.New(errs.CorruptIndex, "PropList.GetInt", err)
	}
	return n, nil
}

// GetFloat returns the float value for key.
func (p *PropList) GetFloat(key string) (float64, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, errs.New(errs.IOError, "PropList.GetFloat", fmt.Errorf("missing key %q", key))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errs.New(errs.CorruptIndex, "PropList.GetFloat", err)
	}
	return f, nil
}

// Save writes the list to path, one "key\tvalue\n" line per entry, keys
// in insertion order.
func (p *PropList) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "PropList.Save", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, k := range p.keys {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", k, p.values[k]); err != nil {
			return errs.New(errs.IOError, "PropList.Save", err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.New(errs.IOError, "PropList.Save", err)
	}
	return nil
}

// LoadPropList reads a prop.list file.
func LoadPropList(path string) (*PropList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "LoadPropList", err)
	}
	defer f.Close()

	p := NewPropList()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return nil, errs.New(errs.CorruptIndex, "LoadPropList", fmt.Errorf("malformed line %q in %s", line, path))
		}
		p.Set(line[:tab], line[tab+1:])
	}
	if err := sc.Err(); err != nil {
		return nil, errs.New(errs.IOError, "LoadPropList", err)
	}
	return p, nil
}

// SortedKeys returns a PropList's keys in lexicographic order, useful for
// deterministic test assertions.
func (p *PropList) SortedKeys() []string {
	out := append([]string(nil), p.keys...)
	sort.Strings(out)
	return out
}

// ShardDir returns the conventional per-shard directory name under a
// section (index/logprob/backoff/logbound/count/type), e.g. "ngram-000003"
// for shard 3.
func ShardDir(shard int) string {
	return fmt.Sprintf("ngram-%06d", shard)
}

// JoinShard builds the path base/ShardDir(shard).
func JoinShard(base string, shard int) string {
	return filepath.Join(base, ShardDir(shard))
}
