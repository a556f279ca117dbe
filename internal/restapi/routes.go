package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lifetimes in seconds.
const (
	catalogCacheSeconds = 300
	noCache             = 0
)

// SetRoutes registers every API route on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	api.handle(mux, "GET /api/config", noCache, api.configHandler)
	api.handle(mux, "GET /api/current-time", noCache, api.currentTimeHandler)

	api.handle(mux, "GET /api/datasources", noCache, api.datasourcesHandler)
	api.handle(mux, "POST /api/datasources/{name}/refresh", noCache, api.refreshDatasourceHandler)
	api.handle(mux, "DELETE /api/datasources/{name}", noCache, api.removeDatasourceHandler)

	api.handle(mux, "GET /api/datasources/{name}/agencies", catalogCacheSeconds, api.agenciesHandler)
	api.handle(mux, "GET /api/datasources/{name}/routes", catalogCacheSeconds, api.routesHandler)
	api.handle(mux, "GET /api/datasources/{name}/routes/{route}/stops", catalogCacheSeconds, api.routeStopsHandler)
	api.handle(mux, "GET /api/datasources/{name}/trips/{trip}/shape", catalogCacheSeconds, api.tripShapeHandler)

	api.handle(mux, "GET /api/datasources/{name}/next-departure", noCache, api.nextDepartureHandler)
	api.handle(mux, "GET /api/datasources/{name}/nearby", noCache, api.nearbyHandler)

	api.handle(mux, "GET /api/realtime/{target}/status", noCache, api.realtimeStatusHandler)
	api.handle(mux, "GET /api/realtime/{target}/vehicles", noCache, api.realtimeVehiclesHandler)
	api.handle(mux, "POST /api/realtime/{target}/snapshot", noCache, api.realtimeSnapshotHandler)
}

// handle wraps h with the API key check, rate limiting and cache headers.
func (api *RestAPI) handle(mux *http.ServeMux, pattern string, cacheSeconds int, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = CacheControlMiddleware(cacheSeconds, handler)
	handler = api.rateLimiter.Wrap(handler, api.rateLimitedResponse)
	handler = api.requireAPIKey(handler)
	mux.Handle(pattern, handler)
}

func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
