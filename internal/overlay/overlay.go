// Package overlay renders map overlays: trip shapes and live vehicle
// positions as GeoJSON feature collections.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"

	geojson "github.com/paulmach/go.geojson"
	"github.com/twpayne/go-polyline"

	"departureboard.app/gtfsdb"
)

// FileName is the overlay file of one route direction.
func FileName(routeID, direction string) string {
	return routeID + "_" + direction + ".json"
}

// TripShape turns ordered shape points into a single LineString feature.
// It returns an empty collection when the trip has no shape.
func TripShape(tripID string, points []gtfsdb.Shape) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(points) == 0 {
		return fc
	}

	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lon, p.Lat}
	}
	f := geojson.NewLineStringFeature(coords)
	f.SetProperty("id", tripID)
	f.SetProperty("title", tripID)
	fc.AddFeature(f)
	return fc
}

// EncodePolyline encodes shape points with the Google polyline algorithm.
func EncodePolyline(points []gtfsdb.Shape) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// WriteFeatureCollection writes fc to dir/name, replacing the file
// atomically.
func WriteFeatureCollection(dir, name string, fc *geojson.FeatureCollection) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create overlay directory: %w", err)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create overlay file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write overlay file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write overlay file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
