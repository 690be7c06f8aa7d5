package repo

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/ngram-lm/expgram/backward"
	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// Section names a model value directory, per spec.md §6.1.
type Section string

const (
	SectionLogProb  Section = "logprob"
	SectionBackoff  Section = "backoff"
	SectionLogBound Section = "logbound"
	SectionCount    Section = "count"
	SectionType     Section = "type"
)

// Layout describes one repository's on-disk root and the per-shard/per-
// section paths derived from it.
type Layout struct {
	Root string
}

// New returns a Layout rooted at dir.
func New(dir string) *Layout {
	return &Layout{Root: dir}
}

// IndexDir is the shard-index root, holding vocab/ and ngram-{s}/.
func (l *Layout) IndexDir() string { return filepath.Join(l.Root, "index") }

// VocabDir is the vocabulary store directory.
func (l *Layout) VocabDir() string { return filepath.Join(l.IndexDir(), "vocab") }

// ShardIndexDir is one shard's trie directory under index/.
func (l *Layout) ShardIndexDir(shard int) string { return JoinShard(l.IndexDir(), shard) }

// SectionDir is a value section's root, e.g. "<root>/logprob".
func (l *Layout) SectionDir(s Section) string { return filepath.Join(l.Root, string(s)) }

// ShardSectionDir is one shard's directory within a value section.
func (l *Layout) ShardSectionDir(s Section, shard int) string {
	return JoinShard(l.SectionDir(s), shard)
}

// RootPropList is the top-level prop.list path.
func (l *Layout) RootPropList() string { return filepath.Join(l.Root, "prop.list") }

// Header holds the repository-wide metadata read from the root prop.list
// (spec.md §6.1: "prop.list with shard=S, order=N, backward=1" plus
// "smooth=<float>").
type Header struct {
	Shards   int
	Order    int
	Backward bool
	Smooth   float64
}

// LoadHeader reads and validates the repository's root prop.list.
func LoadHeader(dir string) (Header, error) {
	l := New(dir)
	p, err := LoadPropList(l.RootPropList())
	if err != nil {
		return Header{}, err
	}
	shards, err := p.GetInt("shard")
	if err != nil {
		return Header{}, err
	}
	order, err := p.GetInt("order")
	if err != nil {
		return Header{}, err
	}
	backwardStr, _ := p.Get("backward")
	smooth, err := p.GetFloat("smooth")
	if err != nil {
		return Header{}, err
	}
	return Header{
		Shards:   int(shards),
		Order:    int(order),
		Backward: backwardStr == "1",
		Smooth:   smooth,
	}, nil
}

// Save writes h as the repository's root prop.list.
func (h Header) Save(dir string) error {
	p := NewPropList()
	p.SetInt("shard", int64(h.Shards))
	p.SetInt("order", int64(h.Order))
	if h.Backward {
		p.Set("backward", "1")
	} else {
		p.Set("backward", "0")
	}
	p.Set("smooth", fmt.Sprintf("%g", h.Smooth))
	return p.Save(New(dir).RootPropList())
}

// LoadEngine assembles a query.Engine from a fully-built repository: the
// shared vocabulary, every shard's trie, and the logprob/backoff/logbound
// arrays for each shard (spec.md §6.4). Model arrays are read in full into
// memory; large repositories should instead read them lazily through
// blockstore, which Layout's section directories are also laid out to
// support.
func LoadEngine(dir string) (*query.Engine, error) {
	hdr, err := LoadHeader(dir)
	if err != nil {
		return nil, err
	}
	l := New(dir)

	v, err := vocab.Load(filepath.Join(l.VocabDir(), "vocab.bin"))
	if err != nil {
		return nil, err
	}

	shards := make([]*trie.Shard, hdr.Shards)
	logprob := make([]*query.ModelArray, hdr.Shards)
	backoff := make([]*query.ModelArray, hdr.Shards)
	logbound := make([]*query.ModelArray, hdr.Shards)

	for s := 0; s < hdr.Shards; s++ {
		shard, err := LoadShard(l.ShardIndexDir(s))
		if err != nil {
			return nil, errs.New(errs.CorruptIndex, "LoadEngine", fmt.Errorf("shard %d: %w", s, err))
		}
		shards[s] = shard

		lp, err := LoadFloatArray(l.ShardSectionDir(SectionLogProb, s))
		if err != nil {
			return nil, err
		}
		logprob[s] = lp

		bo, err := LoadFloatArray(l.ShardSectionDir(SectionBackoff, s))
		if err != nil {
			return nil, err
		}
		backoff[s] = bo

		lb, err := LoadFloatArray(l.ShardSectionDir(SectionLogBound, s))
		if err != nil {
			lb = query.NewModelArray(nil)
		}
		logbound[s] = lb
	}

	idx := &trie.Index{Shards: shards, Vocab: v, Order: hdr.Order, Backward: hdr.Backward}
	engine := &query.Engine{
		Index:          idx,
		LogProbArrays:  logprob,
		BackoffArrays:  backoff,
		LogBoundArrays: logbound,
		MaxOrder:       hdr.Order,
		BOSID:          vocab.BOS,
		Smooth:         hdr.Smooth,
	}
	engine.EnableFindCache(findCacheCapacity, findCacheTTL)
	return engine, nil
}

// findCacheCapacity/findCacheTTL size the serving-path Next() lookup cache
// LoadEngine enables by default (spec.md §4.5 "Caches"): large enough to
// hold a few sentences' worth of repeated contexts without growing
// unbounded for a long-lived query process.
const (
	findCacheCapacity = 1 << 16
	findCacheTTL      = 10 * time.Minute
)

// SaveRepository writes a fully built model (the trie shards and raw/
// modified count arrays from build.Pipeline.Finish, plus the logprob/
// backoff/logbound arrays from build.EstimateModel) to dir in the layout
// LoadEngine reads back, per spec.md §6.1. smooth is the root unknown-word
// fallback LoadEngine restores onto query.Engine.Smooth (normally
// engine.Smooth itself, the value EstimateModel derived); backward marks a
// reversed repository built by package backward.
func SaveRepository(dir string, v *vocab.Vocab, results []build.Result, engine *query.Engine, smooth float64, backward bool) error {
	l := New(dir)

	hdr := Header{Shards: len(results), Order: engine.MaxOrder, Backward: backward, Smooth: smooth}
	if err := hdr.Save(dir); err != nil {
		return err
	}
	if err := v.Save(filepath.Join(l.VocabDir(), "vocab.bin")); err != nil {
		return err
	}

	if err := saveShardsConcurrently(len(results), func(s int) error {
		r := results[s]
		if err := SaveShard(l.ShardIndexDir(s), r.Shard); err != nil {
			return err
		}
		if err := SaveCountArray(l.ShardSectionDir(SectionCount, s), r.RawCounts); err != nil {
			return err
		}
		if err := SaveCountArray(l.ShardSectionDir(SectionType, s), r.ModifiedCounts); err != nil {
			return err
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionLogProb, s), engine.LogProbArrays[s].Values()); err != nil {
			return err
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionBackoff, s), engine.BackoffArrays[s].Values()); err != nil {
			return err
		}
		return SaveFloatArray(l.ShardSectionDir(SectionLogBound, s), engine.LogBoundArrays[s].Values())
	}); err != nil {
		return err
	}
	return nil
}

// saveShardsConcurrently runs save for every shard index in [0,n) on its
// own goroutine — each shard's files live under a distinct directory, so
// there is no shared mutable state to guard — and combines every failure
// (rather than stopping at the first) via multierr, so a caller saving a
// large repository to a flaky disk learns about every bad shard in one
// pass instead of one at a time across repeated retries.
func saveShardsConcurrently(n int, save func(s int) error) error {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs error
	)
	for s := 0; s < n; s++ {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := save(s); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

// SaveEngine writes engine's trie shards and score arrays to dir with no
// count sections, for callers that never had raw/modified counts to begin
// with (package arpa's Import path, which parses pre-computed
// probabilities rather than deriving them).
func SaveEngine(dir string, v *vocab.Vocab, engine *query.Engine, smooth float64) error {
	l := New(dir)
	hdr := Header{Shards: len(engine.Index.Shards), Order: engine.MaxOrder, Backward: engine.Index.Backward, Smooth: smooth}
	if err := hdr.Save(dir); err != nil {
		return err
	}
	if err := v.Save(filepath.Join(l.VocabDir(), "vocab.bin")); err != nil {
		return err
	}
	return saveShardsConcurrently(len(engine.Index.Shards), func(s int) error {
		if err := SaveShard(l.ShardIndexDir(s), engine.Index.Shards[s]); err != nil {
			return err
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionLogProb, s), engine.LogProbArrays[s].Values()); err != nil {
			return err
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionBackoff, s), engine.BackoffArrays[s].Values()); err != nil {
			return err
		}
		return SaveFloatArray(l.ShardSectionDir(SectionLogBound, s), engine.LogBoundArrays[s].Values())
	})
}

// SaveBackwardRepository writes a package backward-reorganised model to
// dir. Unlike SaveRepository, a backward rebuild assigns its trie nodes
// entirely new positions (backward.Builder routes and orders reversed
// n-grams independently of the forward build), so there is no raw/
// modified count array left that still aligns with those positions; the
// count sections are simply omitted; a loader encountering a backward
// header with no count section should treat that as expected, not
// corrupt.
func SaveBackwardRepository(dir string, v *vocab.Vocab, results []backward.Result, smooth float64) error {
	l := New(dir)

	hdr := Header{Shards: len(results), Order: 0, Backward: true, Smooth: smooth}
	for _, r := range results {
		if n := len(r.Shard.Offsets); n-1 > hdr.Order {
			hdr.Order = n - 1
		}
	}
	if err := hdr.Save(dir); err != nil {
		return err
	}
	if err := v.Save(filepath.Join(l.VocabDir(), "vocab.bin")); err != nil {
		return err
	}

	for s, r := range results {
		if err := SaveShard(l.ShardIndexDir(s), r.Shard); err != nil {
			return err
		}
		logprob := make([]float32, len(r.LogProb))
		for i, x := range r.LogProb {
			logprob[i] = float32(x)
		}
		backoff := make([]float32, len(r.Backoff))
		for i, x := range r.Backoff {
			backoff[i] = float32(x)
		}
		logbound := make([]float32, len(r.LogBound))
		for i, x := range r.LogBound {
			logbound[i] = float32(x)
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionLogProb, s), logprob); err != nil {
			return err
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionBackoff, s), backoff); err != nil {
			return err
		}
		if err := SaveFloatArray(l.ShardSectionDir(SectionLogBound, s), logbound); err != nil {
			return err
		}
	}
	return nil
}

// LoadCounts reads back the raw and modified count arrays SaveRepository
// wrote for every shard, for callers (package arpa's export path) that need
// the counts themselves rather than just the estimated probabilities.
func LoadCounts(dir string, shards int) (raw, modified [][]uint64, err error) {
	l := New(dir)
	raw = make([][]uint64, shards)
	modified = make([][]uint64, shards)
	for s := 0; s < shards; s++ {
		raw[s], err = LoadCountArray(l.ShardSectionDir(SectionCount, s))
		if err != nil {
			return nil, nil, err
		}
		modified[s], err = LoadCountArray(l.ShardSectionDir(SectionType, s))
		if err != nil {
			return nil, nil, err
		}
	}
	return raw, modified, nil
}
