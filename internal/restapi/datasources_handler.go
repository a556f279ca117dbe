package restapi

import (
	"log/slog"
	"net/http"

	"departureboard.app/internal/datasource"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/models"
)

type datasourceState struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (api *RestAPI) datasourcesHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := api.Datasources.Summaries()
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(summaries, api.Clock))
}

// refreshDatasourceHandler starts ingestion and answers 202 right away.
func (api *RestAPI) refreshDatasourceHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	done, err := api.Datasources.RefreshByName(api.workerCtx, name)
	if err != nil {
		api.domainErrorResponse(w, r, err)
		return
	}

	logger := api.logger(r)
	go func() {
		res := <-done
		if res.Err == nil {
			logging.LogOperation(logger, "datasource_refresh_finished", slog.String("datasource", res.Name))
		}
	}()

	state := datasourceState{Name: name, Status: datasource.Extracting.String()}
	api.sendStatus(w, r, http.StatusAccepted, models.NewResponse(http.StatusAccepted, "Accepted", state, api.Clock))
}

func (api *RestAPI) removeDatasourceHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := api.Datasources.Remove(name); err != nil {
		api.domainErrorResponse(w, r, err)
		return
	}
	api.sendData(w, r, datasourceState{Name: name, Status: "removed"})
}
