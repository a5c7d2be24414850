package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
)

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ImageHandler serves materialized article images from dir under prefix
func ImageHandler(prefix, dir string) http.HandlerFunc {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix+"/")

		// Stored names are flat
		if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}

		if contentType, ok := imageContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}
