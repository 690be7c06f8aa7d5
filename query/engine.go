package query

import (
	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/vocab"
)

// Result is the outcome of a single-word logprob/logbound query: the
// accumulated log-probability and the state reached, per spec.md §4.13
// ("return acc + logprob[next_state] together with next_state's maximal-
// suffix representation as the returned state").
type Result struct {
	LogProb float64
	State   State
}

// LogProb computes log P(word | context(state)), following spec.md
// §4.13's walk-with-backoff procedure.
func (e *Engine) LogProb(s State, word vocab.ID) Result {
	s = e.clipToMaxOrder(s)

	acc := 0.0
	for {
		next := e.Next(s, word)
		if !next.IsRoot() {
			if v := e.logProbAt(next); v != model.MinLogProb {
				return Result{LogProb: acc + v, State: next}
			}
		}
		if s.IsRoot() {
			return e.rootFallback(acc, word)
		}
		acc += e.backoffAt(s)
		s = e.Suffix(s)
	}
}

// LogBound computes an admissible upper bound on LogProb: identical to
// LogProb except it reads logbound[] at the first non-MIN hit, falling
// back to logprob[] at the highest order (spec.md §4.13).
func (e *Engine) LogBound(s State, word vocab.ID) Result {
	s = e.clipToMaxOrder(s)

	acc := 0.0
	for {
		next := e.Next(s, word)
		if !next.IsRoot() {
			if v := e.logBoundAt(next); v != model.MinLogProb {
				return Result{LogProb: acc + v, State: next}
			}
			if v := e.logProbAt(next); v != model.MinLogProb {
				return Result{LogProb: acc + v, State: next}
			}
		}
		if s.IsRoot() {
			return e.rootFallback(acc, word)
		}
		acc += e.backoffAt(s)
		s = e.Suffix(s)
	}
}

func (e *Engine) rootFallback(acc float64, word vocab.ID) Result {
	if word == e.BOSID {
		return Result{LogProb: acc, State: Root()}
	}
	return Result{LogProb: acc + e.Smooth, State: Root()}
}

func (e *Engine) logProbAt(s State) float64 {
	if s.IsRoot() {
		return model.MinLogProb
	}
	return e.LogProbArrays[s.shard].Get(s.pos)
}

func (e *Engine) logBoundAt(s State) float64 {
	if s.IsRoot() {
		return model.MinLogProb
	}
	return e.LogBoundArrays[s.shard].Get(s.pos)
}

func (e *Engine) backoffAt(s State) float64 {
	if s.IsRoot() {
		return 0
	}
	v := e.BackoffArrays[s.shard].Get(s.pos)
	if v == model.MinLogProb {
		return 0
	}
	return v
}

// LogProbSequence scores a full token sequence, restricting to the last
// MaxOrder tokens and walking left to right, accumulating back-offs for
// unmatched suffixes and logprobs for matched n-grams (spec.md §4.13,
// "logprob(seq)"). An empty sequence scores 0.
func (e *Engine) LogProbSequence(ids []vocab.ID) float64 {
	if len(ids) == 0 {
		return 0
	}
	if len(ids) > e.MaxOrder {
		ids = ids[len(ids)-e.MaxOrder:]
	}

	state := Root()
	total := 0.0
	for _, id := range ids {
		res := e.LogProb(state, id)
		total += res.LogProb
		state = res.State
	}
	return total
}
