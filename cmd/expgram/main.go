// Command expgram builds, queries, and converts n-gram language model
// repositories (spec.md §6.4): build a repository from raw counts or a
// tokenised corpus, query a built repository interactively or in batch,
// and import/export the ARPA and Google n-gram interchange formats.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/ngram-lm/expgram/tempreg"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	tempreg.InstallSignalHandler()

	app := &cli.App{
		Name:        "expgram",
		Version:     gitCommitSHA,
		Description: "Build, query, and convert sharded n-gram language model repositories.",
		Flags:       NewKlogFlagSet(),
		Commands: []*cli.Command{
			newCmd_Build(),
			newCmd_Query(),
			newCmd_Arpa(),
			newCmd_Google(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
