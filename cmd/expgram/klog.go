package main

import (
	"flag"
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

// NewKlogFlagSet wires the subset of klog's verbosity flags this CLI
// actually exposes, the same EnvVars-and-fs.Set bridging pattern the
// teacher's own klog.go uses for its much larger flag set.
func NewKlogFlagSet() []cli.Flag {
	fs := flag.NewFlagSet("klog", flag.PanicOnError)
	klog.InitFlags(fs)
	fs.Set("logtostderr", "true")

	return []cli.Flag{
		&cli.IntFlag{
			Name:    "v",
			Usage:   "log verbosity level",
			EnvVars: []string{"EXPGRAM_V"},
			Value:   1,
			Action: func(cctx *cli.Context, v int) error {
				fs.Set("v", fmt.Sprint(v))
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "log_dir",
			Usage:   "write log files to this directory instead of stderr",
			EnvVars: []string{"EXPGRAM_LOG_DIR"},
			Action: func(cctx *cli.Context, v string) error {
				if v != "" {
					fs.Set("logtostderr", "false")
					fs.Set("log_dir", v)
				}
				return nil
			},
		},
	}
}
