package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/cpuinfo"
)

func cpuCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "cpu",
		Usage: "Print the CPU features relevant to the convolution kernels",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the report as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r := cpuinfo.Detect()
			w := outWriter(cmd)
			if asJSON {
				data, err := json.Marshal(r)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}
			features := r.Enabled()
			if len(features) == 0 {
				features = []string{"none"}
			}
			_, _ = fmt.Fprintf(w, "platform: %s/%s\n", r.GoOS, r.GoArch)
			_, _ = fmt.Fprintf(w, "threads:  %d\n", r.CPUs)
			_, _ = fmt.Fprintf(w, "class:    %s\n", r.Class())
			_, _ = fmt.Fprintf(w, "features: %s\n", strings.Join(features, " "))
			return nil
		},
	}
}
