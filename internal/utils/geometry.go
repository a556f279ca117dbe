// Package utils holds small geographic helpers shared by the stop index and
// the proximity finder.
package utils

import "math"

// RadiusOfEarthInMeters is the mean radius used for all distances.
const RadiusOfEarthInMeters = 6371010.0

// Below this span in degrees the equirectangular approximation is used.
const smallSpanDegrees = 0.2

// CoordinateBounds is a latitude/longitude box in degrees.
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi, dLambda := phi2-phi1, radians(lon2-lon1)

	if math.Abs(lat2-lat1) < smallSpanDegrees && math.Abs(lon2-lon1) < smallSpanDegrees {
		x := dLambda * math.Cos((phi1+phi2)/2)
		return RadiusOfEarthInMeters * math.Hypot(x, dPhi)
	}

	// Vincenty's formula on a sphere.
	sinP1, cosP1 := math.Sincos(phi1)
	sinP2, cosP2 := math.Sincos(phi2)
	sinL, cosL := math.Sincos(dLambda)
	num := math.Hypot(cosP2*sinL, cosP1*sinP2-sinP1*cosP2*cosL)
	den := sinP1*sinP2 + cosP1*cosP2*cosL
	return RadiusOfEarthInMeters * math.Atan2(num, den)
}

// BoundsFromSpan builds a square box of radius degrees around a point.
func BoundsFromSpan(lat, lon, radius float64) CoordinateBounds {
	return CoordinateBounds{MinLat: lat - radius, MaxLat: lat + radius, MinLon: lon - radius, MaxLon: lon + radius}
}

// Min and Max return the box corners as lon/lat pairs, the order R-tree
// queries take them in.
func (b CoordinateBounds) Min() [2]float64 { return [2]float64{b.MinLon, b.MinLat} }
func (b CoordinateBounds) Max() [2]float64 { return [2]float64{b.MaxLon, b.MaxLat} }

// StrictlyContains excludes points on the box edge.
func (b CoordinateBounds) StrictlyContains(lat, lon float64) bool {
	return lat > b.MinLat && lat < b.MaxLat && lon > b.MinLon && lon < b.MaxLon
}
