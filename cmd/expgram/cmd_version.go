package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"time"

	"github.com/urfave/cli/v2"
)

func newCmd_Version() *cli.Command {
	return &cli.Command{
		Name:        "version",
		Usage:       "Print version information of this binary.",
		Description: "Print version information of this binary.",
		Action: func(c *cli.Context) error {
			printVersion()
			return nil
		},
	}
}

func printVersion() {
	fmt.Println("expgram CLI")
	fmt.Println("Date:", time.Now().Format(time.RFC3339))
	fmt.Println("Go version:", runtime.Version())
	fmt.Println("Num CPU:", runtime.NumCPU())
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if isAnyOf(setting.Key, "-compiler", "GOARCH", "GOOS", "vcs.revision", "vcs.time", "vcs.modified") {
				fmt.Printf("  %s: %s\n", setting.Key, setting.Value)
			}
		}
	}
}

func isAnyOf(s string, anyOf ...string) bool {
	return slices.Contains(anyOf, s)
}
