// Package geo holds the pure great-circle functions used for zone evaluation.
package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/bft-labs/zonecast/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius of the spherical model.
const EarthRadiusMeters = 6371000.0

// Distance returns the haversine great-circle distance between a and b in meters.
// Inputs are not validated; out-of-range or NaN coordinates propagate NaN.
func Distance(a, b domain.Coordinate) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Bearing returns the initial bearing (forward azimuth) from one coordinate
// toward another in degrees within [0, 360), 0 being due north.
func Bearing(from, to domain.Coordinate) float64 {
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	dLon := (to.Lon - from.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi

	b := math.Mod(deg+360, 360)
	if b >= 360 {
		b -= 360
	}
	return b
}

// Offset returns the point reached by travelling meters along bearing from c.
// Used by replay fixtures and tests to build sample paths.
func Offset(c domain.Coordinate, bearing, meters float64) domain.Coordinate {
	lat1 := c.Lat * math.Pi / 180
	lon1 := c.Lon * math.Pi / 180
	brg := bearing * math.Pi / 180
	ang := meters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))

	return domain.Coordinate{Lat: lat2 * 180 / math.Pi, Lon: lon2 * 180 / math.Pi}
}
