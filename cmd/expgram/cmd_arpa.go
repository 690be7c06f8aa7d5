package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ngram-lm/expgram/arpa"
	"github.com/ngram-lm/expgram/repo"
)

// newCmd_Arpa implements `expgram arpa import/export`, spec.md §6.2/§6.4.
func newCmd_Arpa() *cli.Command {
	return &cli.Command{
		Name:        "arpa",
		Usage:       "Import or export the standard ARPA language model format.",
		Description: "Import or export the standard ARPA language model format.",
		Subcommands: []*cli.Command{
			newCmd_ArpaImport(),
			newCmd_ArpaExport(),
		},
	}
}

func newCmd_ArpaImport() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import an ARPA file into a repository.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "path to the ARPA file"},
			&cli.StringFlag{Name: "output", Required: true, Usage: "destination repository directory"},
			&cli.IntFlag{Name: "shard", Value: 1, Usage: "number of shards to route n-grams across"},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("in"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("arpa import: %v", err), 1)
			}
			defer f.Close()

			v, engine, err := arpa.Import(f, c.Int("shard"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("arpa import: %v", err), 1)
			}

			if err := repo.SaveEngine(c.String("output"), v, engine, engine.Smooth); err != nil {
				return cli.Exit(fmt.Sprintf("arpa import: %v", err), 1)
			}
			return nil
		},
	}
}

func newCmd_ArpaExport() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a repository to an ARPA file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ngram", Required: true, Usage: "path to the repository"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "destination ARPA file path"},
		},
		Action: func(c *cli.Context) error {
			engine, err := repo.LoadEngine(c.String("ngram"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("arpa export: %v", err), 1)
			}
			f, err := os.Create(c.String("out"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("arpa export: %v", err), 1)
			}
			defer f.Close()

			if err := arpa.Export(f, engine); err != nil {
				return cli.Exit(fmt.Sprintf("arpa export: %v", err), 1)
			}
			return nil
		},
	}
}
