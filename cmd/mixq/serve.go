package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mixq/internal/api"
	"github.com/samcharles93/mixq/internal/logger"
)

func (a *app) serveCmd() *cli.Command {
	var (
		addr        string
		layersDir   string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the convolution REST API over a directory of .qlf layers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			layersDirFlag(&layersDir),
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			a.applyServeConfig(cmd, &addr)

			store := api.NewLayerStore(a.layersDir(cmd, layersDir))
			n, err := store.LoadAll(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load layers: %v", err), 1)
			}
			log.Info("layers loaded", "dir", store.Dir(), "count", n)

			server := api.NewServer(store, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
