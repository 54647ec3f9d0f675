// Package web serves a prebuilt console frontend as a single-page application.
//
// The frontend is built separately; point STATIC_DIR at its output directory.
package web

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// SPAHandler returns an http.Handler that serves files from dir and falls
// back to index.html for any path that doesn't match a file (client-side routing).
func SPAHandler(dir string) http.Handler {
	return spaHandler(os.DirFS(dir))
}

func spaHandler(root fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if f, err := root.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close file", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		// Unknown API paths must not be masked by index.html.
		if strings.HasPrefix(path, "api/") {
			http.NotFound(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
