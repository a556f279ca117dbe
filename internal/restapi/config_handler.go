package restapi

import (
	"net/http"

	"departureboard.app/internal/models"
)

func (api *RestAPI) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := models.ConfigModel{
		Name:     "departureboard",
		Build:    models.ReadBuildProperties(),
		Timezone: api.Location.String(),
	}
	for _, ds := range api.Config.Datasources {
		cfg.Datasources = append(cfg.Datasources, ds.Name)
	}
	for _, t := range api.Config.Realtime {
		cfg.Targets = append(cfg.Targets, t.Name)
	}
	api.sendData(w, r, cfg)
}
