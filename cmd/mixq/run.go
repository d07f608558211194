package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qconv"
)

func (a *app) runCmd() *cli.Command {
	var (
		layerRef    string
		layersDir   string
		inputPath   string
		outputPath  string
		raw         bool
		randomInput bool
		seed        uint64
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Convolve one packed input with a .qlf layer",
		Flags: []cli.Flag{
			layerFlag(&layerRef),
			layersDirFlag(&layersDir),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "packed input tensor (HWC, exactly the layer's input size)",
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the result here instead of hex to stdout",
				Destination: &outputPath,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "emit int32 accumulators (little-endian) instead of the packed output",
				Destination: &raw,
			},
			&cli.BoolFlag{
				Name:        "random-input",
				Usage:       "generate a random input instead of reading --input",
				Destination: &randomInput,
			},
			seedFlag(&seed),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			layer, path, err := loadLayer(ctx, layerRef, a.layersDir(cmd, layersDir))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			p := layer.Params

			var in []byte
			switch {
			case randomInput:
				in = randomPacked(p.Geometry.InDim*p.Geometry.InDim*p.Geometry.InCh, p.Variant.In, seed)
			case inputPath != "":
				in, err = os.ReadFile(inputPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
				}
			default:
				return cli.Exit("error: one of --input or --random-input is required", 1)
			}
			if len(in) != p.InputLen() {
				return cli.Exit(fmt.Sprintf("error: %s: input has %d bytes, layer %q expects %d",
					qconv.StatusSizeMismatch, len(in), layer.Name, p.InputLen()), 1)
			}

			scratch := qconv.NewScratch(p.Geometry)
			start := time.Now()
			var result []byte
			if raw {
				acc := make([]int32, p.Positions()*p.Geometry.OutCh)
				err = qconv.ConvolveRaw(acc, in, layer.Weights, p, scratch)
				result = encodeAccumulators(acc)
			} else {
				result = make([]byte, p.OutputLen())
				err = qconv.Convolve(result, in, layer.Weights, p, scratch)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", qconv.StatusOf(err), err), 1)
			}
			log.Info("convolution complete",
				"layer", path,
				"variant", p.Variant.String(),
				"out_dim", p.Geometry.OutDim(),
				"raw", raw,
				"elapsed", time.Since(start),
			)

			if outputPath != "" {
				if err := os.WriteFile(outputPath, result, 0o644); err != nil {
					return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
				}
				return nil
			}
			return writeHex(outWriter(cmd), result)
		},
	}
}

// randomPacked returns n uniformly random values at b bits, packed.
func randomPacked(n int, b qconv.Bits, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vals := make([]uint8, n)
	for i := range vals {
		vals[i] = uint8(r.IntN(b.Levels()))
	}
	return qconv.MustPack(vals, b)
}

func encodeAccumulators(acc []int32) []byte {
	out := make([]byte, 4*len(acc))
	for i, v := range acc {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func writeHex(w io.Writer, data []byte) error {
	const perLine = 32
	for i := 0; i < len(data); i += perLine {
		end := min(i+perLine, len(data))
		if _, err := fmt.Fprintf(w, "%x\n", data[i:end]); err != nil {
			return err
		}
	}
	return nil
}
