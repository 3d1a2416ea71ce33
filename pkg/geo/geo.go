// Package geo provides the coordinate type and great-circle distance math
// used for field proximity matching.
//
// Distances are computed with the haversine formula on a spherical Earth
// (radius 6371 km). That is accurate to well under a metre at field scale,
// which is far below typical GPS accuracy.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

// Coordinate is a WGS84 position as delivered by a location collaborator.
type Coordinate struct {
	// Lat is the latitude in degrees, in [-90, 90].
	Lat float64

	// Lng is the longitude in degrees, in [-180, 180].
	Lng float64

	// AccuracyMeters is the reported horizontal accuracy radius.
	// Zero means the collaborator did not report accuracy.
	AccuracyMeters float64
}

// Validate checks that the coordinate is within the valid WGS84 ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("geo: latitude %.6f out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("geo: longitude %.6f out of range [-180, 180]", c.Lng)
	}
	if c.AccuracyMeters < 0 {
		return fmt.Errorf("geo: accuracy %.1f m must not be negative", c.AccuracyMeters)
	}
	return nil
}

// Distance returns the great-circle distance between a and b in kilometres.
// It is symmetric: Distance(a, b) == Distance(b, a).
func Distance(a, b Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func toRad(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
