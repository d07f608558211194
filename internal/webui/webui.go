// Package webui provides the embedded status page served by mixq serve.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// StaticFS returns the embedded static files rooted at static/.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed path is fixed at build time.
		panic(err)
	}
	return sub
}

// Handler serves the status page and its assets.
func Handler() http.Handler {
	return http.FileServer(http.FS(StaticFS()))
}
