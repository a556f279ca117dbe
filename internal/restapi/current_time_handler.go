package restapi

import (
	"net/http"
	"time"
)

type currentTime struct {
	Time         int64  `json:"time"`
	ReadableTime string `json:"readableTime"`
	Timezone     string `json:"timezone"`
}

// currentTimeHandler reports the clock the schedule queries run against.
func (api *RestAPI) currentTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := api.Now()
	api.sendData(w, r, currentTime{
		Time:         now.UnixMilli(),
		ReadableTime: now.Format(time.RFC3339),
		Timezone:     api.Location.String(),
	})
}
