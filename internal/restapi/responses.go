package restapi

import (
	"encoding/json"
	"net/http"

	"departureboard.app/internal/models"
)

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	api.sendStatus(w, r, http.StatusOK, response)
}

func (api *RestAPI) sendStatus(w http.ResponseWriter, r *http.Request, status int, response models.ResponseModel) {
	setJSONResponseType(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		api.logEncodeError(r, err)
	}
}

// sendData answers 200 with data; a nil data encodes as null.
func (api *RestAPI) sendData(w http.ResponseWriter, r *http.Request, data any) {
	api.sendResponse(w, r, models.NewOKResponse(data, api.Clock))
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	api.sendStatus(w, r, code, models.NewErrorResponse(code, message, api.Clock))
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

// sendRaw writes an already encoded JSON document.
func (api *RestAPI) sendRaw(w http.ResponseWriter, r *http.Request, body []byte) {
	setJSONResponseType(w)
	if _, err := w.Write(body); err != nil {
		api.logEncodeError(r, err)
	}
}
