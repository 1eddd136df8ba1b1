package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler returns the dashboard handler, mounted by the API at its root.
//
// dir, when non-empty and an existing directory, replaces the embedded
// assets. Unknown paths get index.html so deep links into the page work.
// Panics if the embedded assets are missing, which is a build error.
func Handler(dir string) http.Handler {
	fileSystem := assets(dir)
	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		p := path.Clean("/" + r.URL.Path)
		if p != "/" {
			f, err := fileSystem.Open(p)
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}

func assets(dir string) http.FileSystem {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.Dir(dir)
		}
	}
	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
	}
	return http.FS(webFS)
}
