package realtime

import (
	geojson "github.com/paulmach/go.geojson"
)

// BuildPositions maps trip id to the position of the vehicle serving it.
// Vehicles without a trip are not in service and are skipped.
func BuildPositions(entities []Entity) map[string]Position {
	positions := map[string]Position{}
	for _, e := range entities {
		v := e.Vehicle
		if v == nil || v.TripID == "" {
			continue
		}
		positions[v.TripID] = Position{Lon: v.Lon, Lat: v.Lat}
	}
	return positions
}

// FeatureFor returns a point feature for every in-service vehicle on
// routeID in direction.
func FeatureFor(entities []Entity, routeID, direction string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range entities {
		v := e.Vehicle
		if v == nil || v.TripID == "" {
			continue
		}
		if v.RouteID != routeID || v.DirectionID != direction {
			continue
		}

		f := geojson.NewPointFeature([]float64{v.Lon, v.Lat})
		title := v.RouteID + "(" + v.DirectionID + ")"
		f.SetProperty("id", title)
		f.SetProperty("title", title)
		f.SetProperty("trip_id", v.TripID)
		f.SetProperty("route_id", v.RouteID)
		f.SetProperty("direction_id", v.DirectionID)
		f.SetProperty("vehicle_id", v.VehicleID)
		f.SetProperty("vehicle_label", v.VehicleLabel)
		fc.AddFeature(f)
	}
	return fc
}
