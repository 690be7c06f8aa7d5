package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ngram-lm/expgram/backward"
	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/repo"
	"github.com/ngram-lm/expgram/tempreg"
	"github.com/ngram-lm/expgram/vocab"
)

// newCmd_Build implements `expgram build`, spec.md §6.4:
//
//	expgram build --counts|--corpus <path> --output <repo> --shard N
//	    [--order N] [--remove-unk] [--temporary <dir>] [--backward]
func newCmd_Build() *cli.Command {
	return &cli.Command{
		Name:        "build",
		Usage:       "Build a repository from raw counts or a tokenised corpus.",
		Description: "Build a repository from raw counts or a tokenised corpus.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "counts", Usage: "path to a Google-layout counts directory"},
			&cli.StringFlag{Name: "corpus", Usage: "path to a plain-text corpus, one sentence per line"},
			&cli.StringFlag{Name: "output", Required: true, Usage: "destination repository directory"},
			&cli.IntFlag{Name: "shard", Value: 1, Usage: "number of shards to route n-grams across"},
			&cli.IntFlag{Name: "order", Value: 3, Usage: "maximum n-gram order"},
			&cli.BoolFlag{Name: "remove-unk", Usage: "treat <unk> as a zero event during estimation"},
			&cli.StringFlag{Name: "temporary", Usage: "override temp-file root for corpus accumulation"},
			&cli.BoolFlag{Name: "backward", Usage: "reorganise the built repository into backward (reversed-context) storage"},
		},
		Action: runBuild,
	}
}

func runBuild(c *cli.Context) error {
	countsPath := c.String("counts")
	corpusPath := c.String("corpus")
	if (countsPath == "") == (corpusPath == "") {
		return cli.Exit("exactly one of --counts or --corpus must be given", 1)
	}

	shardCount := c.Int("shard")
	maxOrder := c.Int("order")
	removeUnk := c.Bool("remove-unk")
	output := c.String("output")

	var (
		v       *vocab.Vocab
		results []build.Result
		engine  *query.Engine
		err     error
	)
	if countsPath != "" {
		v, results, engine, err = buildFromGoogleCounts(countsPath, shardCount, maxOrder, removeUnk)
	} else {
		root := tempreg.New()
		untrack := tempreg.Track(root)
		defer untrack()
		tempDir := c.String("temporary")
		if tempDir == "" {
			tempDir = output
		}
		v, results, engine, err = buildFromCorpus(corpusPath, shardCount, maxOrder, removeUnk, tempDir, root)
		if err == nil {
			err = root.Drain()
		}
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("build: %v", err), 1)
	}

	if c.Bool("backward") {
		backwardEngine, rerr := backward.Reorganise(engine)
		if rerr != nil {
			return cli.Exit(fmt.Sprintf("build: reorganise: %v", rerr), 1)
		}
		if err := repo.SaveEngine(output, v, backwardEngine, backwardEngine.Smooth); err != nil {
			return cli.Exit(fmt.Sprintf("build: save: %v", err), 1)
		}
		return nil
	}

	if err := repo.SaveRepository(output, v, results, engine, engine.Smooth, false); err != nil {
		return cli.Exit(fmt.Sprintf("build: save: %v", err), 1)
	}
	return nil
}
