package restapi

import (
	"net/http"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/datasource"
	"departureboard.app/internal/models"
)

// handleFor resolves the {name} datasource or writes the error response.
func (api *RestAPI) handleFor(w http.ResponseWriter, r *http.Request) (*datasource.Handle, bool) {
	h, err := api.Datasources.Handle(r.PathValue("name"))
	if err != nil {
		api.domainErrorResponse(w, r, err)
		return nil, false
	}
	return h, true
}

func (api *RestAPI) agenciesHandler(w http.ResponseWriter, r *http.Request) {
	h, ok := api.handleFor(w, r)
	if !ok {
		return
	}
	rows, err := h.Queries.ListAgencies(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(models.NewAgencies(rows), api.Clock))
}

// routesHandler filters by ?agency= (an id or "id: name" label, "0" for
// all) and ?route_type= (99 for all).
func (api *RestAPI) routesHandler(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r.URL.Query())
	agency := params.str("agency")
	routeType := params.int("route_type", int(gtfsdb.AnyRouteType))
	if !params.valid() {
		api.validationErrorResponse(w, r, params.errors)
		return
	}

	h, ok := api.handleFor(w, r)
	if !ok {
		return
	}
	rows, err := h.Queries.ListRoutes(r.Context(), gtfsdb.ListRoutesParams{
		AgencyID:  agency,
		RouteType: int64(routeType),
	})
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(models.NewRoutes(rows), api.Clock))
}

func (api *RestAPI) routeStopsHandler(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r.URL.Query())
	direction := params.int("direction", 0)
	if direction != 0 && direction != 1 {
		params.fail("direction", "must be 0 or 1")
	}
	if !params.valid() {
		api.validationErrorResponse(w, r, params.errors)
		return
	}

	h, ok := api.handleFor(w, r)
	if !ok {
		return
	}
	rows, err := h.Queries.ListStopsForRoute(r.Context(), gtfsdb.ListStopsForRouteParams{
		RouteID:   r.PathValue("route"),
		Direction: int64(direction),
	})
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(models.NewStops(rows), api.Clock))
}
