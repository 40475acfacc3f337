package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/NERVsystems/co2mcp/pkg/geo"
)

// ValidateCoords checks latitude and longitude ranges
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return NewError(ErrInvalidParameter, fmt.Sprintf("latitude must be between -90 and 90, got %f", lat)).
			WithGuidance("Ensure latitude is in decimal degrees")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return NewError(ErrInvalidParameter, fmt.Sprintf("longitude must be between -180 and 180, got %f", lon)).
			WithGuidance("Ensure longitude is in decimal degrees")
	}
	return nil
}

// ValidateLocation is ValidateCoords for a geo.Location
func ValidateLocation(loc geo.Location) error {
	return ValidateCoords(loc.Latitude, loc.Longitude)
}

// ValidateDistance checks a travel distance entered by the user or returned
// by a service: it must be finite and greater than zero
func ValidateDistance(km float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km <= 0 {
		return NewError(ErrInvalidDistance, fmt.Sprintf("distance must be greater than zero, got %v", km)).
			WithGuidance("Enter a valid distance in kilometers")
	}
	return nil
}

// ValidateAmount checks a non-negative quantity such as kg of CO2
func ValidateAmount(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NewError(ErrInvalidInput, fmt.Sprintf("%s must be a non-negative number, got %v", name, v)).
			WithGuidance("Please correct the parameters and try again.")
	}
	return nil
}

// RequireString rejects empty or whitespace-only values
func RequireString(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewError(ErrMissingParameter, fmt.Sprintf("%s is required", name)).
			WithGuidance(fmt.Sprintf("Provide a non-empty %s", name))
	}
	return nil
}
