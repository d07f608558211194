package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/cpuinfo"
	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qconv"
)

func (a *app) benchCmd() *cli.Command {
	var (
		layerRef   string
		layersDir  string
		warmupRuns int64
		benchRuns  int64
		seed       uint64
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Time repeated convolutions of a layer on a random input",
		Flags: []cli.Flag{
			layerFlag(&layerRef),
			layersDirFlag(&layersDir),
			&cli.Int64Flag{
				Name:        "warmup",
				Usage:       "number of warmup runs",
				Value:       2,
				Destination: &warmupRuns,
			},
			&cli.Int64Flag{
				Name:        "runs",
				Usage:       "number of timed runs",
				Value:       20,
				Destination: &benchRuns,
			},
			seedFlag(&seed),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			a.applyBenchConfig(cmd, &benchRuns, &warmupRuns)
			if benchRuns < 1 || warmupRuns < 0 {
				return cli.Exit("error: --runs must be at least 1 and --warmup non-negative", 1)
			}

			layer, _, err := loadLayer(ctx, layerRef, a.layersDir(cmd, layersDir))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			p := layer.Params
			g := p.Geometry
			in := randomPacked(g.InDim*g.InDim*g.InCh, p.Variant.In, seed)
			out := make([]byte, p.OutputLen())
			scratch := qconv.NewScratch(g)

			for range warmupRuns {
				if err := qconv.Convolve(out, in, layer.Weights, p, scratch); err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", qconv.StatusOf(err), err), 1)
				}
			}

			var total, best time.Duration
			for i := range benchRuns {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				if err := qconv.Convolve(out, in, layer.Weights, p, scratch); err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", qconv.StatusOf(err), err), 1)
				}
				d := time.Since(start)
				total += d
				if i == 0 || d < best {
					best = d
				}
			}

			mean := total / time.Duration(benchRuns)
			macs := float64(p.Positions()) * float64(g.OutCh) * float64(g.ColLen())
			cpu := cpuinfo.Detect()
			log.Debug("bench complete", "layer", layer.Name, "runs", benchRuns, "total", total)

			w := outWriter(cmd)
			_, _ = fmt.Fprintf(w, "layer:   %s (%s)\n", layer.Name, p.Variant)
			_, _ = fmt.Fprintf(w, "cpu:     %s/%s %s, %d threads\n", cpu.GoOS, cpu.GoArch, cpu.Class(), cpu.CPUs)
			_, _ = fmt.Fprintf(w, "runs:    %d (warmup %d)\n", benchRuns, warmupRuns)
			_, _ = fmt.Fprintf(w, "mean:    %s\n", mean)
			_, _ = fmt.Fprintf(w, "best:    %s\n", best)
			if mean > 0 {
				_, _ = fmt.Fprintf(w, "rate:    %.2f MMAC/s\n", macs/mean.Seconds()/1e6)
			}
			return nil
		},
	}
}
