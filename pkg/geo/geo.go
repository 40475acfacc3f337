// Package geo provides basic geographic types and great-circle math.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadius is the mean Earth radius in meters
	EarthRadius = 6371000.0

	// EarthRadiusKm is the mean Earth radius in kilometers
	EarthRadiusKm = EarthRadius / 1000
)

// Location is a WGS84 coordinate in decimal degrees
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String formats the location as "lat,lon"
func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

// Valid reports whether the location is inside the WGS84 range
func (l Location) Valid() bool {
	return ValidateCoords(l.Latitude, l.Longitude) == nil
}

// ValidateCoords checks latitude and longitude ranges
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", lon)
	}
	return nil
}

// toRadians converts degrees to radians
func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineDistance calculates the great-circle distance in meters between two points
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// HaversineKm is HaversineDistance between two locations, in kilometers
func HaversineKm(from, to Location) float64 {
	return HaversineDistance(from.Latitude, from.Longitude, to.Latitude, to.Longitude) / 1000
}
