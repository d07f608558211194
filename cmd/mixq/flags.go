package main

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/logger"
)

func (a *app) globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &a.configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &a.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, plain, text, json)",
			Value:       "pretty",
			Destination: &a.logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &a.debug,
		},
	}
}

// before loads the config file and installs the logger in the context.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(a.configFile)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	a.cfg = cfg
	a.applyLoggingConfig(cmd)

	level := a.logLevel
	if a.debug {
		level = "debug"
	}
	log, err := logger.Setup(errWriter(cmd), a.logFormat, level)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func layerFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "layer",
		Aliases:     []string{"l"},
		Usage:       "path to a .qlf file, or a layer name inside the layers directory",
		Destination: dest,
		Required:    true,
	}
}

func layersDirFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "layers-dir",
		Usage:       "directory containing .qlf layers (default $" + envLayersDir + ")",
		Destination: dest,
	}
}

func seedFlag(dest *uint64) cli.Flag {
	return &cli.Uint64Flag{
		Name:        "seed",
		Usage:       "seed for synthetic inputs",
		Value:       1,
		Destination: dest,
	}
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
