package overlay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"departureboard.app/gtfsdb"
)

var shapePoints = []gtfsdb.Shape{
	{ShapeID: "SH1", Lat: 38.5, Lon: -120.2, ShapePtSequence: 0},
	{ShapeID: "SH1", Lat: 40.7, Lon: -120.95, ShapePtSequence: 1},
	{ShapeID: "SH1", Lat: 43.252, Lon: -126.453, ShapePtSequence: 2},
}

func TestTripShape(t *testing.T) {
	fc := TripShape("T_A", shapePoints)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.True(t, f.Geometry.IsLineString())
	assert.Equal(t, []float64{-120.2, 38.5}, f.Geometry.LineString[0])
	assert.Equal(t, "T_A", f.Properties["id"])
	assert.Equal(t, "T_A", f.Properties["title"])

	assert.Empty(t, TripShape("T_X", nil).Features)
}

func TestEncodePolyline(t *testing.T) {
	encoded := EncodePolyline(shapePoints)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	require.NoError(t, err)
	require.Len(t, coords, 3)
	assert.InDelta(t, 43.252, coords[2][0], 1e-5)
}

func TestWriteFeatureCollection(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "geojson")
	fc := TripShape("T_A", shapePoints)

	require.NoError(t, WriteFeatureCollection(dir, FileName("5", "0"), fc))

	raw, err := os.ReadFile(filepath.Join(dir, "5_0.json"))
	require.NoError(t, err)
	decoded, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)
	assert.Len(t, decoded.Features, 1)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "FeatureCollection", generic["type"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
