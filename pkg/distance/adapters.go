package distance

import (
	"context"
	"errors"
	"fmt"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/NERVsystems/co2mcp/pkg/osm"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

// OSRM codes meaning the points could not be connected by road
var unroutableCodes = map[string]bool{
	"NoSegment": true,
	"NoMatch":   true,
}

// NominatimGeocoder adapts an osm.Geocoder to the Geocoder port
type NominatimGeocoder struct {
	Client *osm.Geocoder
}

// Geocode returns the best Nominatim match for address
func (g NominatimGeocoder) Geocode(ctx context.Context, address string) (geo.Location, error) {
	place, err := g.Client.Geocode(ctx, address)
	switch {
	case errors.Is(err, osm.ErrNoResults):
		return geo.Location{}, fmt.Errorf("%w: %v", ErrPlaceNotFound, err)
	case err != nil:
		return geo.Location{}, &UnavailableError{Service: tracing.ServiceNominatim, Err: err}
	}
	return place.Location, nil
}

// OSRMRouter adapts the OSRM client to the Router port
type OSRMRouter struct {
	Options core.OSRMOptions
}

// NewOSRMRouter routes with the default OSRM options
func NewOSRMRouter() OSRMRouter {
	return OSRMRouter{Options: core.DefaultOSRMOptions()}
}

// Route returns the road distance in meters using the profile for mode
func (r OSRMRouter) Route(ctx context.Context, from, to geo.Location, mode string) (float64, error) {
	opts := r.Options
	if mode != "" {
		opts.Profile = core.ProfileForMode(mode)
	}

	meters, err := core.RouteDistance(ctx, from, to, opts)
	if err == nil {
		return meters, nil
	}

	var osrmErr *core.OSRMError
	switch {
	case errors.Is(err, core.ErrNoRoute):
		return 0, fmt.Errorf("%w: %v", ErrRouteNotFound, err)
	case errors.As(err, &osrmErr) && unroutableCodes[osrmErr.Code]:
		return 0, fmt.Errorf("%w: %v", ErrRouteNotFound, err)
	default:
		return 0, &UnavailableError{Service: tracing.ServiceOSRM, Err: err}
	}
}
