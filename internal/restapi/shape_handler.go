package restapi

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"departureboard.app/internal/logging"
	"departureboard.app/internal/models"
	"departureboard.app/internal/overlay"
)

// tripShapeHandler returns the shape of a trip as GeoJSON and an encoded
// polyline. With ?write=true the GeoJSON is also stored as the overlay of
// the trip's route and direction.
func (api *RestAPI) tripShapeHandler(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r.URL.Query())
	write := params.bool("write")
	if !params.valid() {
		api.validationErrorResponse(w, r, params.errors)
		return
	}

	h, ok := api.handleFor(w, r)
	if !ok {
		return
	}
	tripID := r.PathValue("trip")

	trip, err := h.Queries.GetTrip(r.Context(), tripID)
	if errors.Is(err, sql.ErrNoRows) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	points, err := h.Queries.GetShapePointsForTrip(r.Context(), tripID)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if len(points) == 0 {
		api.sendData(w, r, nil)
		return
	}

	fc := overlay.TripShape(tripID, points)
	if write && api.Config.OutputDir != "" {
		direction := "0"
		if trip.DirectionID.Valid {
			direction = strconv.FormatInt(trip.DirectionID.Int64, 10)
		}
		name := overlay.FileName(trip.RouteID, direction)
		if err := overlay.WriteFeatureCollection(api.Config.OutputDir, name, fc); err != nil {
			logging.LogError(api.logger(r), "failed to write shape overlay", err, slog.String("file", name))
		}
	}

	api.sendData(w, r, models.TripShape{
		TripID:   tripID,
		Points:   len(points),
		Polyline: overlay.EncodePolyline(points),
		GeoJSON:  fc,
	})
}
