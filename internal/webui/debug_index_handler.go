package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"departureboard.app/internal/appconf"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugData struct {
	Title string
	Pre   string
}

var dumper = spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{Title: title, Pre: dumper.Sdump(data)})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugAllowed(w http.ResponseWriter, r *http.Request) bool {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return false
	}
	return true
}

// debugRealtimeHandler dumps the latest snapshot of one realtime target.
func (webUI *WebUI) debugRealtimeHandler(w http.ResponseWriter, r *http.Request) {
	if !webUI.debugAllowed(w, r) {
		return
	}
	name := r.PathValue("target")
	if _, ok := webUI.Target(name); !ok || webUI.Realtime == nil {
		http.NotFound(w, r)
		return
	}

	snap := webUI.Realtime.Get(name)
	if snap == nil {
		writeDebugData(w, "Realtime - "+name, map[string]string{"status": "not refreshed yet"})
		return
	}
	writeDebugData(w, "Realtime - "+name, snap)
}

func (webUI *WebUI) debugDatasourcesHandler(w http.ResponseWriter, r *http.Request) {
	if !webUI.debugAllowed(w, r) {
		return
	}
	summaries, err := webUI.Datasources.Summaries()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeDebugData(w, "Datasources", summaries)
}
