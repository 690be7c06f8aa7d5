// Package arpa implements standard ARPA language model import/export
// (spec.md §6.2): the de facto text interchange format shared by SRILM,
// IRSTLM, KenLM, and expgram's own ARPA tooling. Import builds a forward
// query.Engine directly from an ARPA file's own logprob/backoff fields
// (there are no raw counts to re-derive); Export walks any engine —
// forward or package backward-reorganised — back out to the same text
// shape.
package arpa

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// ln10 converts between ARPA's base-10 logs and this module's natural-log
// internal representation, per spec.md §6.2: "Probabilities are multiplied
// by ln 10" on import (and divided back out on export).
var ln10 = math.Log(10)

type edgeRec struct {
	parent           uint64
	child            vocab.ID
	logprob, backoff float64
}

type shardState struct {
	builder    *trie.ShardBuilder
	contextPos map[string]uint64
	tokens     map[uint64][]vocab.ID
	logprob    []float64
	backoff    []float64
}

func contextKey(ids []vocab.ID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// Import reads an ARPA-format language model from r, returning the
// vocabulary it builds (unigrams define vocabulary order) and a
// query.Engine ready to score against it. shardCount controls how the
// resulting index is split: each higher-order line goes to the shard
// trie.Index.ShardIndex picks from the hash of its first two tokens, the
// same routing package build uses. The returned engine has no logbound section;
// callers that need upper bounds should estimate them separately (package
// build's EstimateModel machinery, or leave the query floor to LogProb
// alone).
func Import(r io.Reader, shardCount int) (*vocab.Vocab, *query.Engine, error) {
	v := vocab.New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	if err := skipToSection(sc, "\\1-grams:"); err != nil {
		return nil, nil, err
	}

	unigramLogProb := make(map[vocab.ID]float64)
	unigramBackoff := make(map[vocab.ID]float64)
	order := 1
	line, hasUnigrams, err := readUnigrams(sc, v, unigramLogProb, unigramBackoff)
	if err != nil {
		return nil, nil, err
	}
	if !hasUnigrams {
		return nil, nil, errs.New(errs.CorruptIndex, "arpa.Import", fmt.Errorf("no unigrams found"))
	}
	ensureUnknown(v, unigramLogProb)

	vocabSize := v.Len()
	logprob := make([]float64, vocabSize)
	backoff := make([]float64, vocabSize)
	for i := range logprob {
		logprob[i] = model.MinLogProb
	}
	for id, lp := range unigramLogProb {
		logprob[id] = lp
	}
	for id, bo := range unigramBackoff {
		backoff[id] = bo
	}

	shards := make([]*shardState, shardCount)
	for s := range shards {
		shards[s] = &shardState{
			builder:    trie.NewShardBuilder(vocabSize),
			contextPos: make(map[string]uint64),
			tokens:     make(map[uint64][]vocab.ID),
		}
	}
	for s := range shards {
		ss := shards[s]
		ss.logprob = append([]float64(nil), logprob...)
		ss.backoff = append([]float64(nil), backoff...)
		for id := 0; id < vocabSize; id++ {
			ids := []vocab.ID{vocab.ID(id)}
			ss.contextPos[contextKey(ids)] = uint64(id)
			ss.tokens[uint64(id)] = ids
		}
	}

	routeShard := func(ids []vocab.ID) int {
		idx := &trie.Index{Shards: make([]*trie.Shard, shardCount)}
		return idx.ShardIndex(ids)
	}

	for {
		// line currently holds either the next section header or EOF marker.
		header := strings.TrimSpace(line)
		if header == "" || header == "\\end\\" {
			break
		}
		order++
		line = "\\end\\" // EOF before another section header means this was the last one
		var records []struct {
			ids     []vocab.ID
			logprob float64
			backoff float64
		}
		for sc.Scan() {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			if strings.HasPrefix(text, "\\") {
				line = text
				break
			}
			fields := strings.Split(text, "\t")
			if len(fields) < order+1 {
				return nil, nil, errs.New(errs.CorruptIndex, "arpa.Import", fmt.Errorf("malformed %d-gram line %q", order, text))
			}
			lp, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, nil, errs.New(errs.CorruptIndex, "arpa.Import", err)
			}
			ids := make([]vocab.ID, order)
			for i := 0; i < order; i++ {
				ids[i] = resolveWord(v, fields[1+i])
			}
			bo := 0.0
			if len(fields) > order+1 {
				bo, err = strconv.ParseFloat(fields[order+1], 64)
				if err != nil {
					return nil, nil, errs.New(errs.CorruptIndex, "arpa.Import", err)
				}
			}
			records = append(records, struct {
				ids     []vocab.ID
				logprob float64
				backoff float64
			}{ids: ids, logprob: lp * ln10, backoff: bo * ln10})
		}
		if err := sc.Err(); err != nil {
			return nil, nil, errs.New(errs.IOError, "arpa.Import", err)
		}

		byShard := make([][]edgeRec, shardCount)
		for _, rec := range records {
			context := rec.ids[:len(rec.ids)-1]
			word := rec.ids[len(rec.ids)-1]
			shard := routeShard(rec.ids)
			parentPos, ok := shards[shard].contextPos[contextKey(context)]
			if !ok {
				return nil, nil, errs.New(errs.CorruptIndex, "arpa.Import", fmt.Errorf("%d-gram context %v has no (n-1)-gram entry", order, context))
			}
			byShard[shard] = append(byShard[shard], edgeRec{parent: parentPos, child: word, logprob: rec.logprob, backoff: rec.backoff})
		}

		for s, edges := range byShard {
			ss := shards[s]
			sort.Slice(edges, func(i, j int) bool {
				if edges[i].parent != edges[j].parent {
					return edges[i].parent < edges[j].parent
				}
				return edges[i].child < edges[j].child
			})
			base := uint64(len(ss.logprob))
			for i, e := range edges {
				pos := base + uint64(i)
				ss.logprob = append(ss.logprob, e.logprob)
				ss.backoff = append(ss.backoff, e.backoff)
				full := make([]vocab.ID, 0, order)
				full = append(full, ss.tokens[e.parent]...)
				full = append(full, e.child)
				ss.contextPos[contextKey(full)] = pos
				ss.tokens[pos] = full
			}
			ss.builder.AddOrder(toBuilderEdges(edges))
		}
	}

	trieShards := make([]*trie.Shard, shardCount)
	logprobArrays := make([]*query.ModelArray, shardCount)
	backoffArrays := make([]*query.ModelArray, shardCount)
	logboundArrays := make([]*query.ModelArray, shardCount)
	for s, ss := range shards {
		trieShards[s] = ss.builder.Finish()
		logprobArrays[s] = query.NewModelArray(toFloat32(ss.logprob))
		backoffArrays[s] = query.NewModelArray(toFloat32(ss.backoff))
		logboundArrays[s] = query.NewModelArray(nil)
	}

	idx := &trie.Index{Shards: trieShards, Vocab: v, Order: order, Backward: false}
	engine := &query.Engine{
		Index:          idx,
		LogProbArrays:  logprobArrays,
		BackoffArrays:  backoffArrays,
		LogBoundArrays: logboundArrays,
		MaxOrder:       order,
		BOSID:          vocab.BOS,
		// smooth is the <unk> unigram's own logprob, whether read from the
		// file or synthesised by ensureUnknown (spec.md §6.2/§4.13 scenario
		// S2: "smooth = -2.0*ln10" for an ARPA load with an explicit <unk>
		// line of -2.0).
		Smooth: logprob[vocab.UNK],
	}
	return v, engine, nil
}

func skipToSection(sc *bufio.Scanner, header string) error {
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == header {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return errs.New(errs.IOError, "arpa.Import", err)
	}
	return errs.New(errs.CorruptIndex, "arpa.Import", fmt.Errorf("missing %s section", header))
}

func readUnigrams(sc *bufio.Scanner, v *vocab.Vocab, logprob, backoff map[vocab.ID]float64) (nextLine string, ok bool, err error) {
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "\\") {
			return text, ok, nil
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return "", false, errs.New(errs.CorruptIndex, "arpa.Import", fmt.Errorf("malformed unigram line %q", text))
		}
		lp, perr := strconv.ParseFloat(fields[0], 64)
		if perr != nil {
			return "", false, errs.New(errs.CorruptIndex, "arpa.Import", perr)
		}
		id := resolveWord(v, fields[1])
		logprob[id] = lp * ln10
		if len(fields) > 2 {
			bo, perr := strconv.ParseFloat(fields[2], 64)
			if perr != nil {
				return "", false, errs.New(errs.CorruptIndex, "arpa.Import", perr)
			}
			backoff[id] = bo * ln10
		}
		ok = true
	}
	if err := sc.Err(); err != nil {
		return "", ok, errs.New(errs.IOError, "arpa.Import", err)
	}
	return "\\end\\", ok, nil
}

// resolveWord maps an ARPA token to a vocabulary id, normalising the
// reserved boundary/unknown spellings to this module's canonical forms
// before inserting (shared normalisation rule with package google, §6.3).
func resolveWord(v *vocab.Vocab, word string) vocab.ID {
	switch strings.ToLower(word) {
	case "<s>":
		return vocab.BOS
	case "</s>":
		return vocab.EOS
	case "<unk>", "<unknown>":
		return vocab.UNK
	default:
		return v.Insert(word)
	}
}

// ensureUnknown synthesises a <unk> unigram entry with smooth = log(1/U)
// if the ARPA file never defined one, per spec.md §6.2.
func ensureUnknown(v *vocab.Vocab, logprob map[vocab.ID]float64) {
	if _, ok := logprob[vocab.UNK]; ok {
		return
	}
	u := v.Len()
	if u == 0 {
		u = 1
	}
	logprob[vocab.UNK] = -math.Log(float64(u))
}

func toBuilderEdges(edges []edgeRec) []struct {
	Parent uint64
	Child  vocab.ID
} {
	out := make([]struct {
		Parent uint64
		Child  vocab.ID
	}, len(edges))
	for i, e := range edges {
		out[i] = struct {
			Parent uint64
			Child  vocab.ID
		}{Parent: e.parent, Child: e.child}
	}
	return out
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
