package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/layerspec"
	"github.com/samcharles93/mixq/internal/logger"
	"github.com/samcharles93/mixq/pkg/qlf"
)

func (a *app) packCmd() *cli.Command {
	var (
		specPath string
		outPath  string
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Build a .qlf layer file from a YAML or JSON layer description",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "spec",
				Aliases:     []string{"s"},
				Usage:       "layer description (.yaml, .yml or .json)",
				Destination: &specPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .qlf path (default <name>.qlf, in $" + envPackOutDir + " when set)",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			spec, err := layerspec.Load(ctx, specPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			layer, err := spec.Build()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", specPath, err), 1)
			}
			out, err := resolvePackOut(specPath, layer.Name, outPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: output path: %v", err), 1)
			}
			if err := qlf.WriteLayer(out, layer); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", out, err), 1)
			}

			log.Info("layer packed",
				"name", layer.Name,
				"variant", layer.Params.Variant.String(),
				"weights", len(layer.Weights),
				"path", out,
			)
			_, _ = fmt.Fprintln(outWriter(cmd), out)
			return nil
		},
	}
}
