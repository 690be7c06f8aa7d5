package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/count"
	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/google"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/tempreg"
	"github.com/ngram-lm/expgram/vocab"
)

// buildFromGoogleCounts drives a build.Pipeline from an already-counted
// Google-layout directory (spec.md §4.7/§6.3), the "--counts" path.
func buildFromGoogleCounts(dir string, shardCount, maxOrder int, removeUnk bool) (*vocab.Vocab, []build.Result, *query.Engine, error) {
	ing := google.NewIngestor(dir)
	v, unigramCounts, err := ing.Vocab()
	if err != nil {
		return nil, nil, nil, err
	}

	p := build.NewPipeline(v, shardCount, maxOrder)
	p.AddUnigrams(unigramCounts)

	for order := 2; order <= maxOrder; order++ {
		var records []build.Ngram
		if err := ing.MergeOrder(order, func(r count.Record) error {
			ids, err := resolveTokens(v, r.Tokens)
			if err != nil {
				return err
			}
			records = append(records, build.Ngram{IDs: ids, Count: r.Count})
			return nil
		}); err != nil {
			return nil, nil, nil, err
		}
		if err := p.AddOrder(order, records); err != nil {
			return nil, nil, nil, err
		}
	}

	results := p.Finish()
	engine := build.EstimateModel(v, results, maxOrder, removeUnk)
	return v, results, engine, nil
}

// buildFromCorpus drives a build.Pipeline from a plain-text corpus, one
// sentence per line, tokenised on whitespace: count.Accumulator collects
// per-order counts to sorted temp files, which are then k-way merged back
// (spec.md §4.7) and fed to the same Pipeline buildFromGoogleCounts uses.
func buildFromCorpus(corpusPath string, shardCount, maxOrder int, removeUnk bool, tempDir string, root *tempreg.Root) (*vocab.Vocab, []build.Result, *query.Engine, error) {
	f, err := os.Open(corpusPath)
	if err != nil {
		return nil, nil, nil, errs.New(errs.IOError, "buildFromCorpus", err)
	}
	defer f.Close()

	v := vocab.New()
	acc := count.NewAccumulator(v, maxOrder, count.DefaultMemoryWatermark, tempDir, root)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("accumulating corpus"),
		progressbar.OptionSpinnerType(14),
	)
	var sentences uint64

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		words := strings.Fields(line)
		ids := make([]vocab.ID, len(words))
		for i, w := range words {
			ids[i] = v.Insert(w)
		}
		if err := acc.AddSentence(ids); err != nil {
			return nil, nil, nil, err
		}
		sentences++
		bar.Add(1)
	}
	bar.Finish()
	if err := sc.Err(); err != nil {
		return nil, nil, nil, errs.New(errs.IOError, "buildFromCorpus", err)
	}
	if err := acc.Flush(); err != nil {
		return nil, nil, nil, err
	}
	klog.Infof("accumulated %s sentences over a %s-word vocabulary", humanize.Comma(int64(sentences)), humanize.Comma(int64(v.Len())))

	p := build.NewPipeline(v, shardCount, maxOrder)

	unigramCounts := make([]uint64, v.Len())
	if err := count.MergeSorted(acc.FlushedFiles(1), func(r count.Record) error {
		ids, err := resolveTokens(v, r.Tokens)
		if err != nil {
			return err
		}
		unigramCounts[ids[0]] += r.Count
		return nil
	}); err != nil {
		return nil, nil, nil, err
	}
	p.AddUnigrams(unigramCounts)

	for order := 2; order <= maxOrder; order++ {
		var records []build.Ngram
		if err := count.MergeSorted(acc.FlushedFiles(order), func(r count.Record) error {
			ids, err := resolveTokens(v, r.Tokens)
			if err != nil {
				return err
			}
			records = append(records, build.Ngram{IDs: ids, Count: r.Count})
			return nil
		}); err != nil {
			return nil, nil, nil, err
		}
		if err := p.AddOrder(order, records); err != nil {
			return nil, nil, nil, err
		}
	}

	results := p.Finish()
	engine := build.EstimateModel(v, results, maxOrder, removeUnk)
	return v, results, engine, nil
}

func resolveTokens(v *vocab.Vocab, tokens string) ([]vocab.ID, error) {
	words := strings.Fields(tokens)
	ids := make([]vocab.ID, len(words))
	for i, w := range words {
		id, ok := v.Lookup(w)
		if !ok {
			return nil, errs.New(errs.VocabMiss, "resolveTokens", fmt.Errorf("word %q not in vocabulary", w))
		}
		ids[i] = id
	}
	return ids, nil
}
