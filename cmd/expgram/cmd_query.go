package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/repo"
	"github.com/ngram-lm/expgram/vocab"
)

// newCmd_Query implements `expgram query`, spec.md §6.4:
//
//	expgram query --ngram <repo> [--shard N]
//
// Reads sentences from stdin, one per line, and prints each sentence's
// score_sequence(ids[]) result: logprob and oov_count (spec.md §6.4).
func newCmd_Query() *cli.Command {
	return &cli.Command{
		Name:        "query",
		Usage:       "Score sentences read from stdin against a built repository.",
		Description: "Score sentences read from stdin against a built repository, one per line.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ngram", Required: true, Usage: "path to the repository"},
			&cli.IntFlag{Name: "shard", Usage: "parallelism degree (recognised, unused by the single-process driver)"},
		},
		Action: func(c *cli.Context) error {
			engine, err := repo.LoadEngine(c.String("ngram"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("query: %v", err), 1)
			}
			if w, werr := repo.WatchHeader(c.String("ngram")); werr == nil {
				defer w.Close()
			}
			return runQueryLoop(os.Stdin, os.Stdout, engine)
		},
	}
}

func runQueryLoop(in *os.File, out *os.File, engine *query.Engine) error {
	v := engine.Index.Vocab
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ids, oov := tokenizeQuery(v, line)
		sentence := make([]vocab.ID, 0, len(ids)+2)
		sentence = append(sentence, vocab.BOS)
		sentence = append(sentence, ids...)
		sentence = append(sentence, vocab.EOS)

		var logprob float64
		if engine.Index.Backward {
			logprob = engine.LogProbSequenceBackward(sentence)
		} else {
			logprob = engine.LogProbSequence(sentence)
		}
		fmt.Fprintf(out, "%.6f\t%d\n", logprob, oov)
	}
	if err := sc.Err(); err != nil {
		return cli.Exit(fmt.Sprintf("query: %v", err), 1)
	}
	return nil
}

func tokenizeQuery(v *vocab.Vocab, line string) ([]vocab.ID, int) {
	words := strings.Fields(line)
	ids := make([]vocab.ID, len(words))
	oov := 0
	for i, w := range words {
		id, ok := v.Lookup(w)
		if !ok {
			id = vocab.UNK
			oov++
		}
		ids[i] = id
	}
	return ids, oov
}
