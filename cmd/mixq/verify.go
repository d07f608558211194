package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qconv"
	"github.com/samcharles93/mixq/pkg/qlf"
)

func (a *app) verifyCmd() *cli.Command {
	var (
		layerRef  string
		layersDir string
		trials    int64
		seed      uint64
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check the fast convolution path against the direct reference on random inputs",
		Flags: []cli.Flag{
			layerFlag(&layerRef),
			layersDirFlag(&layersDir),
			&cli.Int64Flag{
				Name:        "trials",
				Aliases:     []string{"n"},
				Usage:       "number of random inputs",
				Value:       8,
				Destination: &trials,
			},
			seedFlag(&seed),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			layer, _, err := loadLayer(ctx, layerRef, a.layersDir(cmd, layersDir))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if trials < 1 {
				return cli.Exit("error: --trials must be at least 1", 1)
			}

			for i := range uint64(trials) {
				if err := verifyTrial(layer, seed+i); err != nil {
					log.Error("verification failed", "layer", layer.Name, "trial", i, "error", err)
					return cli.Exit(fmt.Sprintf("FAIL %s: trial %d: %v", layer.Name, i, err), 1)
				}
			}
			_, _ = fmt.Fprintf(outWriter(cmd), "OK %s (%s): %d trials\n", layer.Name, layer.Params.Variant, trials)
			return nil
		},
	}
}

// verifyTrial runs one random input through both paths and compares the raw
// accumulators and the packed output.
func verifyTrial(l *qlf.Layer, seed uint64) error {
	p := l.Params
	g := p.Geometry
	in := randomPacked(g.InDim*g.InDim*g.InCh, p.Variant.In, seed)
	n := p.Positions() * g.OutCh

	want := make([]int32, n)
	if err := qconv.Reference(want, in, l.Weights, p); err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	got := make([]int32, n)
	if err := qconv.ConvolveRaw(got, in, l.Weights, p, qconv.NewScratch(g)); err != nil {
		return fmt.Errorf("raw: %w", err)
	}
	if i := firstDiff(got, want); i >= 0 {
		return fmt.Errorf("accumulator %d (pos %d, ch %d): got %d want %d", i, i/g.OutCh, i%g.OutCh, got[i], want[i])
	}

	wantOut := make([]byte, p.OutputLen())
	if err := qconv.Requantize(wantOut, want, p); err != nil {
		return fmt.Errorf("requantize: %w", err)
	}
	gotOut := make([]byte, p.OutputLen())
	if err := qconv.Convolve(gotOut, in, l.Weights, p, qconv.NewScratch(g)); err != nil {
		return fmt.Errorf("convolve: %w", err)
	}
	if !bytes.Equal(gotOut, wantOut) {
		i := 0
		for gotOut[i] == wantOut[i] {
			i++
		}
		return fmt.Errorf("packed output byte %d: got %#02x want %#02x", i, gotOut[i], wantOut[i])
	}
	return nil
}

func firstDiff(a, b []int32) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}
