package restapi

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// health is ok once at least one datasource can answer queries.
func (api *RestAPI) health() (int, HealthResponse) {
	switch {
	case api.Application == nil || api.Datasources == nil:
		return http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Detail: "datasource manager not initialized"}
	case !api.Datasources.AnyReady():
		return http.StatusServiceUnavailable, HealthResponse{Status: "starting", Detail: "no datasource is ready"}
	default:
		return http.StatusOK, HealthResponse{Status: "ok"}
	}
}

func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	code, body := api.health()
	setJSONResponseType(w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.logEncodeError(r, err)
	}
}
