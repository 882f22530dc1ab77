// Package web serves the browser client.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// Handler serves the client. When dir is set, files are read from disk on
// every request so edits show up without a rebuild.
func Handler(dir string) http.Handler {
	if dir != "" {
		slog.Info("serving UI from disk", "tag", "web", "dir", dir)
		return noCache(http.FileServer(http.Dir(dir)))
	}
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// static is compiled in; this cannot fail
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
