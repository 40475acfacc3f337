package distance

import (
	"errors"
	"fmt"
)

// Error kinds returned by Resolve. Match them with errors.Is.
var (
	ErrPlaceNotFound      = errors.New("place not found")
	ErrRouteNotFound      = errors.New("route not found")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInvalidDistance    = errors.New("invalid distance")
)

// Which input a place error refers to
const (
	Origin      = "origin"
	Destination = "destination"
)

// PlaceNotFoundError names the address that did not geocode
type PlaceNotFoundError struct {
	Address string
	Which   string
}

func (e *PlaceNotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Which, e.Address)
}

func (e *PlaceNotFoundError) Is(target error) bool {
	return target == ErrPlaceNotFound
}

// UnavailableError wraps a transport or timeout failure of an upstream service
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// Guidance returns the action a user should take after a failed resolution
func Guidance(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPlaceNotFound):
		return "Check the spelling of the place or enter the distance manually"
	case errors.Is(err, ErrRouteNotFound):
		return "No road route was found; accept a straight-line estimate or enter the distance manually"
	case errors.Is(err, ErrInvalidDistance):
		return "Enter a valid distance in kilometers"
	case errors.Is(err, ErrServiceUnavailable):
		return "The map service is unavailable; try again in a moment or enter the distance manually"
	default:
		return "Try again or enter the distance manually"
	}
}
