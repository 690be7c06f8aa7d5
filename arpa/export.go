package arpa

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// Export writes engine out in standard ARPA format: a \data\ header giving
// the per-order node count, then one \k-grams: section per order with
// "logprob<TAB>word1 ... wordk[<TAB>backoff]" lines in base-10 logs, closed
// by \end\ (spec.md §6.2). A backward (package backward-reorganised)
// engine's node token sequences are stored right-to-left; Export reverses
// each one back to forward reading order before printing, per spec.md
// §6.2's "Backward storage is reversed back to forward order for output".
func Export(w io.Writer, engine *query.Engine) error {
	v := engine.Index.Vocab
	bw := bufio.NewWriter(w)

	// Every shard carries a full copy of the unigram level, so order 1 is
	// counted and written from shard 0 only.
	counts := make([]uint64, engine.MaxOrder+1)
	for order := 1; order <= engine.MaxOrder; order++ {
		for s, shard := range engine.Index.Shards {
			if order >= len(shard.Offsets) || (order == 1 && s > 0) {
				continue
			}
			counts[order] += shard.Offsets[order] - shard.Offsets[order-1]
		}
	}

	if _, err := fmt.Fprintln(bw, "\\data\\"); err != nil {
		return errs.New(errs.IOError, "arpa.Export", err)
	}
	for order := 1; order <= engine.MaxOrder; order++ {
		if _, err := fmt.Fprintf(bw, "ngram %d=%d\n", order, counts[order]); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
	}
	if _, err := fmt.Fprintln(bw); err != nil {
		return errs.New(errs.IOError, "arpa.Export", err)
	}

	for order := 1; order <= engine.MaxOrder; order++ {
		if _, err := fmt.Fprintf(bw, "\\%d-grams:\n", order); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
		for s, shard := range engine.Index.Shards {
			if order >= len(shard.Offsets) || (order == 1 && s > 0) {
				continue
			}
			start, end := shard.Offsets[order-1], shard.Offsets[order]
			for pos := start; pos < end; pos++ {
				ids := tokenSequence(shard, pos)
				if engine.Index.Backward {
					ids = reverseIDs(ids)
				}
				if err := writeEntry(bw, v, engine, s, pos, ids); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(bw); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
	}

	if _, err := fmt.Fprintln(bw, "\\end\\"); err != nil {
		return errs.New(errs.IOError, "arpa.Export", err)
	}
	if err := bw.Flush(); err != nil {
		return errs.New(errs.IOError, "arpa.Export", err)
	}
	return nil
}

func writeEntry(bw *bufio.Writer, v *vocab.Vocab, engine *query.Engine, shard int, pos uint64, ids []vocab.ID) error {
	lp := engine.LogProbArrays[shard].Get(pos)
	if lp == model.MinLogProb {
		lp = 0
	}
	if _, err := bw.WriteString(strconv.FormatFloat(lp/ln10, 'f', 6, 64)); err != nil {
		return errs.New(errs.IOError, "arpa.Export", err)
	}
	for _, id := range ids {
		if err := bw.WriteByte('\t'); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
		if _, err := bw.WriteString(v.Word(id)); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
	}
	bo := engine.BackoffArrays[shard].Get(pos)
	if bo != model.MinLogProb && bo != 0 {
		if _, err := bw.WriteByte('\t'); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
		if _, err := bw.WriteString(strconv.FormatFloat(bo/ln10, 'f', 6, 64)); err != nil {
			return errs.New(errs.IOError, "arpa.Export", err)
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return errs.New(errs.IOError, "arpa.Export", err)
	}
	return nil
}

// tokenSequence reconstructs a node's full token sequence by walking its
// parent chain, identically to package backward's helper of the same name
// (kept separate per-package by the same convention).
func tokenSequence(shard *trie.Shard, pos uint64) []vocab.ID {
	var rev []vocab.ID
	for pos != trie.NotFound {
		rev = append(rev, shard.Index(pos))
		pos = shard.Parent(pos)
	}
	ids := make([]vocab.ID, len(rev))
	for i, id := range rev {
		ids[len(rev)-1-i] = id
	}
	return ids
}

func reverseIDs(ids []vocab.ID) []vocab.ID {
	out := make([]vocab.ID, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
