// Package public embeds the stylesheet and scripts served to the login and
// dashboard pages.
package public

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var assets embed.FS

// Handler serves the embedded assets relative to the static directory. Asset
// names are not fingerprinted, so responses ask caches to revalidate.
func Handler() (http.Handler, error) {
	root, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}
	files := http.FileServer(http.FS(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=0, must-revalidate")
		files.ServeHTTP(w, r)
	}), nil
}
