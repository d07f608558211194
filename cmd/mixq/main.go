package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfg Config

	configFile string
	logLevel   string
	logFormat  string
	debug      bool
}

func newApp() *cli.Command {
	a := &app{}
	return &cli.Command{
		Name:   "mixq",
		Usage:  "Mixed-precision quantized convolution toolkit",
		Flags:  a.globalFlags(),
		Before: a.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			a.packCmd(),
			a.inspectCmd(),
			a.runCmd(),
			a.verifyCmd(),
			a.benchCmd(),
			a.serveCmd(),
			cpuCmd(),
			versionCmd(),
		},
	}
}
