// ABOUTME: Embedded static assets for the web console, served via go:embed
// ABOUTME: Provides the index page and a file server for /static/

package assets

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Index returns the console's index page.
func Index() ([]byte, error) {
	return fs.ReadFile(staticFS, "static/index.html")
}

// FileServer returns an http.Handler serving the embedded static files.
// The handler expects paths relative to the static root (strip /static/
// before calling). Assets are not content-hashed, so everything is served
// no-cache.
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}
