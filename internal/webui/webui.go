// Package webui serves the non JSON pages: the debug dumps and the GeoJSON
// overlay files written for map cards.
package webui

import (
	"net/http"

	"departureboard.app/internal/app"
)

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/realtime/{target}", webUI.debugRealtimeHandler)
	mux.HandleFunc("GET /debug/datasources", webUI.debugDatasourcesHandler)
	mux.HandleFunc("GET /overlays/{file}", webUI.overlayHandler)
}
