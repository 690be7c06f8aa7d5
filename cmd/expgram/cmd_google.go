package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ngram-lm/expgram/repo"
)

// newCmd_Google implements `expgram google import`, spec.md §6.3/§6.4:
// build a repository directly from a Google n-gram layout directory,
// equivalent to `expgram build --counts <dir>` but named for discoverability
// by users coming from the Google corpus release.
func newCmd_Google() *cli.Command {
	return &cli.Command{
		Name:  "google",
		Usage: "Import a Google n-gram layout directory.",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Build a repository from a Google n-gram layout directory.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Required: true, Usage: "path to the Google n-gram layout directory"},
					&cli.StringFlag{Name: "output", Required: true, Usage: "destination repository directory"},
					&cli.IntFlag{Name: "shard", Value: 1, Usage: "number of shards to route n-grams across"},
					&cli.IntFlag{Name: "order", Value: 3, Usage: "maximum n-gram order"},
					&cli.BoolFlag{Name: "remove-unk", Usage: "treat <unk> as a zero event during estimation"},
				},
				Action: func(c *cli.Context) error {
					v, results, engine, err := buildFromGoogleCounts(c.String("in"), c.Int("shard"), c.Int("order"), c.Bool("remove-unk"))
					if err != nil {
						return cli.Exit(fmt.Sprintf("google import: %v", err), 1)
					}
					if err := repo.SaveRepository(c.String("output"), v, results, engine, engine.Smooth, false); err != nil {
						return cli.Exit(fmt.Sprintf("google import: %v", err), 1)
					}
					return nil
				},
			},
		},
	}
}
