package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/realtime"
)

// RealtimeStatus is the status endpoint payload.
type RealtimeStatus struct {
	realtime.Status
	Alerts    realtime.AlertMatch `json:"alerts"`
	FetchedAt *time.Time          `json:"fetched_at,omitempty"`
	Stale     bool                `json:"stale"`
	Errors    []string            `json:"errors,omitempty"`
}

// targetFor resolves the {target} path value or answers 404.
func (api *RestAPI) targetFor(w http.ResponseWriter, r *http.Request) (appconf.RealtimeTarget, bool) {
	target, ok := api.Target(r.PathValue("target"))
	if !ok {
		api.sendNotFound(w, r)
	}
	return target, ok
}

// realtimeStatusHandler reports the "-" attributes until the first refresh.
func (api *RestAPI) realtimeStatusHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := api.targetFor(w, r)
	if !ok {
		return
	}

	var snap *realtime.Snapshot
	if api.Realtime != nil {
		snap = api.Realtime.Get(target.Name)
	}
	now := api.Clock.Now()
	out := RealtimeStatus{
		Status: realtime.UnknownStatus(target),
		Stale:  api.staleDetector.Check(target, snap, now),
	}
	if snap != nil {
		at := snap.FetchedAt
		out.Status = snap.Status.AsOf(target, now, api.Location)
		out.Alerts = snap.Alerts
		out.FetchedAt = &at
		out.Errors = snap.Errors
	}
	api.sendData(w, r, out)
}

// realtimeVehiclesHandler serves the bare GeoJSON feature collection.
func (api *RestAPI) realtimeVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := api.targetFor(w, r)
	if !ok {
		return
	}

	var snap *realtime.Snapshot
	if api.Realtime != nil {
		snap = api.Realtime.Get(target.Name)
	}
	if snap == nil || snap.Vehicles == nil {
		api.sendRaw(w, r, []byte(`{"type":"FeatureCollection","features":[]}`))
		return
	}
	body, err := snap.Vehicles.MarshalJSON()
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendRaw(w, r, body)
}

// realtimeSnapshotHandler stores the raw trip update feed of a target.
func (api *RestAPI) realtimeSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := api.targetFor(w, r)
	if !ok {
		return
	}

	path, err := api.Datasources.DownloadRealtimeSnapshot(r.Context(), target.TripUpdateURL, target.Name, target.RequestHeaders())
	if err != nil {
		logging.LogError(api.logger(r), "realtime snapshot failed", err, slog.String("target", target.Name))
		api.domainErrorResponse(w, r, err)
		return
	}
	api.sendData(w, r, map[string]string{"target": target.Name, "path": path})
}
