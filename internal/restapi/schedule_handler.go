package restapi

import (
	"net/http"
	"time"

	"departureboard.app/internal/schedule"
)

// nextDepartureHandler answers 200 with null data when nothing departs.
func (api *RestAPI) nextDepartureHandler(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r.URL.Query())
	q := schedule.ScheduleQuery{
		Origin:          params.required("origin"),
		Destination:     params.required("destination"),
		RouteType:       params.str("route_type"),
		OffsetMinutes:   params.int("offset", 0),
		IncludeTomorrow: params.bool("include_tomorrow"),
	}
	if !params.valid() {
		api.validationErrorResponse(w, r, params.errors)
		return
	}

	h, ok := api.handleFor(w, r)
	if !ok {
		return
	}

	q.Now = api.Now()
	start := time.Now()
	next, err := api.Resolver(h).Resolve(r.Context(), q)
	api.observeResolve("next_departure", err, next == nil, start)
	if err != nil {
		api.domainErrorResponse(w, r, err)
		return
	}
	if next == nil {
		api.sendData(w, r, nil)
		return
	}
	api.sendData(w, r, next)
}

func (api *RestAPI) nearbyHandler(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r.URL.Query())
	q := schedule.NearbyQuery{
		Lat:             params.float("lat", 0, true),
		Lon:             params.float("lon", 0, true),
		Radius:          params.float("radius", schedule.DefaultNearbyRadius, false),
		Lookahead:       params.minutes("lookahead", schedule.DefaultNearbyLookahead),
		IncludeTomorrow: params.bool("include_tomorrow"),
	}
	if q.Lat < -90 || q.Lat > 90 {
		params.fail("lat", "must be between -90 and 90")
	}
	if q.Lon < -180 || q.Lon > 180 {
		params.fail("lon", "must be between -180 and 180")
	}
	if q.Radius <= 0 || q.Radius > 1 {
		params.fail("radius", "must be greater than 0 and at most 1 degree")
	}
	if !params.valid() {
		api.validationErrorResponse(w, r, params.errors)
		return
	}

	h, ok := api.handleFor(w, r)
	if !ok {
		return
	}

	q.Now = api.Now()
	start := time.Now()
	stops, err := api.Finder(h).Nearby(r.Context(), q)
	api.observeResolve("nearby", err, len(stops) == 0, start)
	if err != nil {
		api.domainErrorResponse(w, r, err)
		return
	}
	if stops == nil {
		stops = []schedule.StopDepartures{}
	}
	api.sendData(w, r, stops)
}

func (api *RestAPI) observeResolve(kind string, err error, empty bool, start time.Time) {
	if api.Metrics == nil {
		return
	}
	result := "found"
	switch {
	case err != nil:
		result = "error"
	case empty:
		result = "empty"
	}
	api.Metrics.ObserveResolve(kind, result, time.Since(start))
}
