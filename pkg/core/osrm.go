package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/NERVsystems/co2mcp/pkg/osm"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

const (
	defaultRouteCacheSize = 256
	defaultRouteCacheTTL  = 24 * time.Hour

	// OSRM response codes
	osrmCodeOk        = "Ok"
	osrmCodeNoRoute   = "NoRoute"
	osrmCodeNoSegment = "NoSegment"
	osrmCodeNoMatch   = "NoMatch"
)

// ErrNoRoute means OSRM could not connect the two points
var ErrNoRoute = errors.New("no route found")

// OSRMError is a non-Ok OSRM response code that does not mean "no route"
type OSRMError struct {
	Code    string
	Message string
}

func (e *OSRMError) Error() string {
	if e.Message == "" {
		return "osrm error: " + e.Code
	}
	return fmt.Sprintf("osrm error: %s: %s", e.Code, e.Message)
}

var (
	routeCache     *expirable.LRU[string, *OSRMResult]
	routeCacheOnce sync.Once
)

// OSRMOptions defines options for OSRM route requests
type OSRMOptions struct {
	// BaseURL overrides the configured OSRM URL
	BaseURL string

	// Profile is the OSRM routing profile, e.g. "driving"
	Profile string

	// Client is the HTTP client used for requests
	Client *http.Client

	RetryOptions RetryOptions
}

// DefaultOSRMOptions routes by car through the rate-limited shared client
func DefaultOSRMOptions() OSRMOptions {
	return OSRMOptions{
		Profile:      "driving",
		Client:       osm.NewRateLimitedClient(10 * time.Second),
		RetryOptions: DefaultRetryOptions,
	}
}

// ProfileForMode picks the OSRM profile for a transport mode.
// Motor vehicles share the driving profile.
func ProfileForMode(mode string) string {
	switch strings.ToLower(mode) {
	case "bicycle", "bike", "cycling":
		return "cycling"
	case "foot", "walking":
		return "walking"
	default:
		return "driving"
	}
}

// OSRMRoute is one route alternative
type OSRMRoute struct {
	Distance   float64 `json:"distance"` // meters
	Duration   float64 `json:"duration"` // seconds
	Weight     float64 `json:"weight"`
	WeightName string  `json:"weight_name"`
}

// OSRMWaypoint is an input coordinate snapped to the road network
type OSRMWaypoint struct {
	Name     string    `json:"name"`
	Location []float64 `json:"location"` // lon, lat
	Distance float64   `json:"distance"` // snap distance in meters
}

// OSRMResult is the /route response
type OSRMResult struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Routes    []OSRMRoute    `json:"routes"`
	Waypoints []OSRMWaypoint `json:"waypoints"`
}

func initCache() {
	routeCacheOnce.Do(func() {
		routeCache = expirable.NewLRU[string, *OSRMResult](defaultRouteCacheSize, nil, defaultRouteCacheTTL)
	})
}

func routeCacheKey(baseURL, profile string, from, to geo.Location) string {
	return fmt.Sprintf("%s|%s|%s;%s", baseURL, profile, from, to)
}

// coordinatePath renders OSRM's lon,lat;lon,lat path segment
func coordinatePath(from, to geo.Location) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", from.Longitude, from.Latitude, to.Longitude, to.Latitude)
}

// GetRoute fetches the best route between two points. A NoRoute, NoSegment
// or NoMatch answer, or an Ok answer with no routes, returns ErrNoRoute.
func GetRoute(ctx context.Context, from, to geo.Location, options OSRMOptions) (*OSRMResult, error) {
	logger := slog.Default().With("service", tracing.ServiceOSRM)

	if options.Profile == "" {
		options.Profile = "driving"
	}
	if options.Client == nil {
		options.Client = osm.NewRateLimitedClient(10 * time.Second)
	}
	baseURL := strings.TrimRight(options.BaseURL, "/")
	if baseURL == "" {
		baseURL = osm.BaseURL(tracing.ServiceOSRM)
	}

	initCache()
	key := routeCacheKey(baseURL, options.Profile, from, to)
	if cached, ok := routeCache.Get(key); ok {
		osm.RecordCache(tracing.CacheTypeRoute, true)
		logger.Debug("route cache hit", "key", key)
		return cached, nil
	}
	osm.RecordCache(tracing.CacheTypeRoute, false)
	logger.Debug("route cache miss", "key", key)

	ctx, span := tracing.StartSpan(ctx, "osrm.route",
		trace.WithAttributes(tracing.ServiceAttributes(tracing.ServiceOSRM, "route", baseURL)...),
		trace.WithAttributes(attribute.String("osrm.profile", options.Profile)),
	)
	defer span.End()

	reqURL := fmt.Sprintf("%s/route/v1/%s/%s?overview=false",
		baseURL, options.Profile, coordinatePath(from, to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		span.SetStatus(codes.Error, "request creation failed")
		return nil, err
	}

	resp, err := WithRetry(ctx, req, options.Client, options.RetryOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	defer resp.Body.Close()

	// OSRM reports NoRoute and InvalidQuery with a 400 and a JSON body
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, ServiceError(tracing.ServiceOSRM, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
	}

	result := &OSRMResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		span.SetStatus(codes.Error, "decode failed")
		return nil, NewError(ErrParseError, fmt.Sprintf("decoding osrm response: %v", err))
	}

	switch {
	case result.Code == osrmCodeNoRoute,
		result.Code == osrmCodeNoSegment,
		result.Code == osrmCodeNoMatch,
		result.Code == osrmCodeOk && len(result.Routes) == 0:
		span.SetStatus(codes.Error, "no route")
		logger.Info("no route between points", "from", from.String(), "to", to.String())
		return nil, fmt.Errorf("%w between %s and %s", ErrNoRoute, from, to)
	case result.Code != osrmCodeOk:
		span.SetStatus(codes.Error, result.Code)
		return nil, &OSRMError{Code: result.Code, Message: result.Message}
	}

	span.SetAttributes(attribute.Float64("osrm.distance_m", result.Routes[0].Distance))
	span.SetStatus(codes.Ok, "")

	routeCache.Add(key, result)
	return result, nil
}

// RouteDistance returns the best route's length in meters
func RouteDistance(ctx context.Context, from, to geo.Location, options OSRMOptions) (float64, error) {
	result, err := GetRoute(ctx, from, to, options)
	if err != nil {
		return 0, err
	}
	return result.Routes[0].Distance, nil
}

// PurgeRouteCache drops every cached route
func PurgeRouteCache() {
	initCache()
	routeCache.Purge()
}
