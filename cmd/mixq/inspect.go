package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/pkg/qconv"
	"github.com/samcharles93/mixq/pkg/qlf"
)

type inspectReport struct {
	Path     string          `json:"path"`
	Version  string          `json:"format_version"`
	FileSize uint64          `json:"file_size"`
	Layer    qlf.LayerInfo   `json:"layer"`
	Sizes    inspectSizes    `json:"sizes"`
	Sections []inspectRecord `json:"sections"`
}

type inspectSizes struct {
	OutDim  int `json:"out_dim"`
	Input   int `json:"input_bytes"`
	Weights int `json:"weight_bytes"`
	Output  int `json:"output_bytes"`
	Scratch int `json:"scratch_values"`
}

type inspectRecord struct {
	Type    string `json:"type"`
	Version uint32 `json:"version"`
	Offset  uint64 `json:"offset"`
	Size    uint64 `json:"size"`
}

func (a *app) inspectCmd() *cli.Command {
	var (
		layerRef  string
		layersDir string
		asJSON    bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header, sections and geometry of a .qlf layer",
		ArgsUsage: "[layer]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "layer",
				Aliases:     []string{"l"},
				Usage:       "path to a .qlf file, or a layer name inside the layers directory",
				Destination: &layerRef,
			},
			layersDirFlag(&layersDir),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the report as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if layerRef == "" {
				layerRef = cmd.Args().First()
			}
			path, err := resolveLayerPath(layerRef, a.layersDir(cmd, layersDir))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			report, err := inspectLayer(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			w := outWriter(cmd)
			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}
			printInspect(w, report)
			return nil
		},
	}
}

func inspectLayer(path string) (*inspectReport, error) {
	f, err := qlf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	l, err := f.Layer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p := l.Params
	r := &inspectReport{
		Path:     path,
		Version:  fmt.Sprintf("%d.%d", f.Header.Major, f.Header.Minor),
		FileSize: f.Header.FileSize,
		Layer:    l.Info(),
		Sizes: inspectSizes{
			OutDim:  p.Geometry.OutDim(),
			Input:   p.InputLen(),
			Weights: p.WeightLen(),
			Output:  p.OutputLen(),
			Scratch: qconv.ScratchLen(p.Geometry),
		},
	}
	for _, s := range f.Sections {
		r.Sections = append(r.Sections, inspectRecord{
			Type:    s.Type.String(),
			Version: s.Version,
			Offset:  s.Offset,
			Size:    s.Size,
		})
	}
	return r, nil
}

func printInspect(w io.Writer, r *inspectReport) {
	info := r.Layer
	_, _ = fmt.Fprintf(w, "file:      %s (%d bytes, qlf %s)\n", r.Path, r.FileSize, r.Version)
	_, _ = fmt.Fprintf(w, "layer:     %s\n", info.Name)
	_, _ = fmt.Fprintf(w, "variant:   u%d_u%d_u%d_%s\n", info.InBits, info.WeightBits, info.OutBits, info.Folding)
	_, _ = fmt.Fprintf(w, "geometry:  %dx%dx%d -> %dx%dx%d, kernel %d, stride %d, padding %v\n",
		info.InDim, info.InDim, info.InCh, r.Sizes.OutDim, r.Sizes.OutDim, info.OutCh, info.Kernel, info.Stride, info.Padding)
	_, _ = fmt.Fprintf(w, "zero:      in %d, out %d\n", info.InZero, info.OutZero)
	_, _ = fmt.Fprintf(w, "bytes:     input %d, weights %d, output %d\n", r.Sizes.Input, r.Sizes.Weights, r.Sizes.Output)
	_, _ = fmt.Fprintln(w, "sections:")
	for _, s := range r.Sections {
		_, _ = fmt.Fprintf(w, "  %-12s v%d offset=%-8d size=%d\n", s.Type, s.Version, s.Offset, s.Size)
	}
	_, _ = fmt.Fprintln(w, strings.Repeat("-", 40))
}
