package restapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"departureboard.app/internal/datasource"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/schedule"
)

// Status texts clients match on.
const (
	textExtracting     = "extracting"
	textNoMatchingStop = "no matching stop"
	textNoZipFile      = "no_zip_file"
	textNoDataFile     = "no_data_file"
)

func (api *RestAPI) logger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context()).With(slog.String("component", "restapi"))
}

func (api *RestAPI) logEncodeError(r *http.Request, err error) {
	logging.LogError(api.logger(r), "failed to write response", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(api.logger(r), "internal server error", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())))
	api.sendError(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (api *RestAPI) rateLimitedResponse(w http.ResponseWriter, r *http.Request, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	api.sendError(w, r, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

func (api *RestAPI) invalidAPIKeyResponse(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, "permission denied")
}

// validationErrorResponse answers 400 listing every offending field.
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(fieldErrors[field], ", ")))
	}
	api.sendError(w, r, http.StatusBadRequest, "invalid request: "+strings.Join(parts, "; "))
}

// domainErrorResponse maps datasource and schedule errors to statuses.
func (api *RestAPI) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, datasource.ErrExtracting):
		api.sendError(w, r, http.StatusConflict, textExtracting)
	case errors.Is(err, schedule.ErrNoMatchingStop):
		api.sendError(w, r, http.StatusNotFound, textNoMatchingStop)
	case errors.Is(err, datasource.ErrUnknownDatasource):
		api.sendNotFound(w, r)
	case errors.Is(err, datasource.ErrNoZipFile):
		api.sendError(w, r, http.StatusNotFound, textNoZipFile)
	case errors.Is(err, datasource.ErrNoDataFile):
		api.sendError(w, r, http.StatusServiceUnavailable, textNoDataFile)
	default:
		api.serverErrorResponse(w, r, err)
	}
}
