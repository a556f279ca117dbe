package webui

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"regexp"
	"strings"
)

// Overlay files are flat "<target>.json" or "<route>_<direction>.json" names.
var overlayName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// overlayHandler serves the GeoJSON files written to the output directory.
func (webUI *WebUI) overlayHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if webUI.Application == nil || webUI.Config.OutputDir == "" || strings.ToLower(path.Ext(name)) != ".json" {
		http.NotFound(w, r)
		return
	}
	if !overlayName.MatchString(name) || strings.Contains(name, "..") {
		slog.Warn("rejected overlay file name", slog.String("file", name))
		http.Error(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	overlays := os.DirFS(webUI.Config.OutputDir)
	if info, err := fs.Stat(overlays, name); err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, overlays, name)
}
