package models

import geojson "github.com/paulmach/go.geojson"

// TripShape is the shape endpoint payload.
type TripShape struct {
	TripID   string                     `json:"trip_id"`
	Points   int                        `json:"points"`
	Polyline string                     `json:"polyline"`
	GeoJSON  *geojson.FeatureCollection `json:"geojson"`
}
