package query

import (
	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// LogProbBackward computes log P(word | context) against a backward
// (package backward-reorganised) engine. Unlike the forward walk, a
// backward trie node addresses a complete n-gram (word plus its context,
// most-recent-first) rather than a reusable context-only prefix, so a
// backward lookup re-traverses from the root for every call instead of
// carrying a persistent State across a sentence's tokens the way
// LogProb/Next do for a forward engine (see DESIGN.md's backward-query
// open-question resolution). context is the preceding tokens, oldest
// first; it is clipped to the trailing MaxOrder-1 tokens exactly as
// LogProbSequence clips forward sequences.
func (e *Engine) LogProbBackward(context []vocab.ID, word vocab.ID) Result {
	if len(context) > e.MaxOrder-1 {
		context = context[len(context)-(e.MaxOrder-1):]
	}

	acc := 0.0
	for {
		full := append(append([]vocab.ID{}, context...), word)
		shard, consumed, pos := e.Index.Traverse(reverseIDs(full))
		if consumed == len(full) && pos != trie.NotFound {
			if v := e.LogProbArrays[shard].Get(pos); v != model.MinLogProb {
				return Result{LogProb: acc + v, State: NewState(shard, pos)}
			}
		}

		if len(context) == 0 {
			return e.rootFallback(acc, word)
		}

		ctxShard, ctxConsumed, ctxPos := e.Index.Traverse(reverseIDs(context))
		if ctxConsumed == len(context) && ctxPos != trie.NotFound {
			if bo := e.BackoffArrays[ctxShard].Get(ctxPos); bo != model.MinLogProb {
				acc += bo
			}
		}
		context = context[1:]
	}
}

// LogProbSequenceBackward is LogProbSequence's counterpart for a backward
// engine: it scores ids left to right, calling LogProbBackward at each
// position with that position's trailing context rather than carrying a
// forward State.
func (e *Engine) LogProbSequenceBackward(ids []vocab.ID) float64 {
	total := 0.0
	for i, word := range ids {
		context := ids[:i]
		if len(context) > e.MaxOrder-1 {
			context = context[len(context)-(e.MaxOrder-1):]
		}
		total += e.LogProbBackward(context, word).LogProb
	}
	return total
}

func reverseIDs(ids []vocab.ID) []vocab.ID {
	out := make([]vocab.ID, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
