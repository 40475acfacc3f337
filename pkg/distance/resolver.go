// Package distance turns two place names into a travel distance: geocode
// both ends, route between them, and fall back to a great-circle estimate
// when no road route exists.
package distance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/co2mcp/pkg/coords"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

// Precision values
const (
	PrecisionRouted       = "routed"
	PrecisionStraightLine = "straight-line"
)

// Outcome values reported to OnResolve
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "place_not_found"
	OutcomeNoRoute      = "route_not_found"
	OutcomeUnavailable  = "service_unavailable"
	OutcomeInvalid      = "invalid_distance"
	OutcomeInvalidInput = "invalid_input"
)

const (
	DefaultGeocodeTimeout = 5 * time.Second
	DefaultRouteTimeout   = 5 * time.Second
	DefaultDependencyWait = 5 * time.Second

	availabilityPoll = 250 * time.Millisecond
)

// Geocoder resolves free text to a coordinate. It returns an error
// matching ErrPlaceNotFound when nothing matches.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Location, error)
}

// Router returns the road distance in meters between two points for a
// transport mode. It returns an error matching ErrRouteNotFound when the
// points cannot be connected.
type Router interface {
	Route(ctx context.Context, from, to geo.Location, mode string) (float64, error)
}

// Service names passed to Availability
const (
	ServiceGeocoder = "geocoder"
	ServiceRouter   = "router"
)

// Availability reports whether an upstream service is currently usable
type Availability interface {
	Available(service string) bool
}

// AvailabilityFunc adapts a function to Availability
type AvailabilityFunc func(service string) bool

func (f AvailabilityFunc) Available(service string) bool { return f(service) }

// Query is one resolution request. A non-nil location overrides geocoding
// for that end.
type Query struct {
	Origin              string
	Destination         string
	Mode                string
	OriginLocation      *geo.Location
	DestinationLocation *geo.Location
}

// Result is a resolved distance
type Result struct {
	Km          float64      `json:"km"`
	RawKm       float64      `json:"raw_km"`
	Precision   string       `json:"precision"`
	Origin      geo.Location `json:"origin"`
	Destination geo.Location `json:"destination"`
}

// Config tunes a Resolver. Zero values pick the defaults.
type Config struct {
	GeocodeTimeout  time.Duration
	RouteTimeout    time.Duration
	DisableFallback bool

	// Availability, when set, is consulted before each service call.
	// An unavailable service is polled for up to DependencyWait.
	Availability   Availability
	DependencyWait time.Duration

	// OnResolve receives the precision ("" on failure) and outcome of every call
	OnResolve func(precision, outcome string)

	Logger *slog.Logger
}

// Resolver implements the geocode, route, fallback protocol
type Resolver struct {
	geocoder Geocoder
	router   Router
	cfg      Config
	logger   *slog.Logger
}

// NewResolver creates a resolver over the given ports
func NewResolver(geocoder Geocoder, router Router, cfg Config) *Resolver {
	if cfg.GeocodeTimeout <= 0 {
		cfg.GeocodeTimeout = DefaultGeocodeTimeout
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = DefaultRouteTimeout
	}
	if cfg.DependencyWait <= 0 {
		cfg.DependencyWait = DefaultDependencyWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		geocoder: geocoder,
		router:   router,
		cfg:      cfg,
		logger:   logger.With("service", "distance"),
	}
}

// Resolve geocodes both ends concurrently, then routes between them. When
// the router finds no route the great-circle distance is returned with
// straight-line precision, unless fallback is disabled.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "distance.resolve",
		trace.WithAttributes(attribute.String(tracing.AttrResolveMode, q.Mode)),
	)
	defer span.End()

	res, fallback, err := r.resolve(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.report("", outcomeFor(err))
		r.logger.Info("distance resolution failed",
			"origin", q.Origin,
			"destination", q.Destination,
			"error", err)
		return Result{}, err
	}

	span.SetAttributes(tracing.ResolveAttributes(res.Precision, fallback, res.RawKm)...)
	span.SetStatus(codes.Ok, "")
	r.report(res.Precision, OutcomeSuccess)
	r.logger.Debug("distance resolved",
		"origin", q.Origin,
		"destination", q.Destination,
		"km", res.Km,
		"precision", res.Precision)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, q Query) (Result, bool, error) {
	var from, to geo.Location

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loc, err := r.locate(gctx, q.Origin, q.OriginLocation, Origin)
		from = loc
		return err
	})
	g.Go(func() error {
		loc, err := r.locate(gctx, q.Destination, q.DestinationLocation, Destination)
		to = loc
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, false, err
	}

	meters, err := r.route(ctx, from, to, q.Mode)
	switch {
	case err == nil:
		km := meters / 1000
		if !validKm(emissions.Round2(km)) {
			return Result{}, false, fmt.Errorf("%w: route of %v meters", ErrInvalidDistance, meters)
		}
		return newResult(km, PrecisionRouted, from, to), false, nil

	case errors.Is(err, ErrRouteNotFound) && !r.cfg.DisableFallback:
		km := geo.HaversineKm(from, to)
		r.logger.Info("no route, using straight-line distance",
			"origin", from.String(),
			"destination", to.String(),
			"km", km)
		if !validKm(emissions.Round2(km)) {
			return Result{}, true, fmt.Errorf("%w: straight-line distance %v km", ErrInvalidDistance, km)
		}
		return newResult(km, PrecisionStraightLine, from, to), true, nil

	default:
		return Result{}, false, err
	}
}

// locate returns the coordinate for one end of the trip
func (r *Resolver) locate(ctx context.Context, text string, selected *geo.Location, which string) (geo.Location, error) {
	if selected != nil {
		if !selected.Valid() {
			return geo.Location{}, fmt.Errorf("%s: invalid selected location %s", which, selected)
		}
		return *selected, nil
	}
	if strings.TrimSpace(text) == "" {
		return geo.Location{}, fmt.Errorf("%s is required", which)
	}

	lit, err := coords.Parse(text)
	switch {
	case err == nil:
		return lit.Location, nil
	case !errors.Is(err, coords.ErrNotCoordinate):
		return geo.Location{}, fmt.Errorf("%s: %w", which, err)
	}

	if err := r.awaitService(ctx, ServiceGeocoder); err != nil {
		return geo.Location{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.GeocodeTimeout)
	defer cancel()

	loc, err := r.geocoder.Geocode(ctx, text)
	if err != nil {
		if errors.Is(err, ErrPlaceNotFound) {
			return geo.Location{}, &PlaceNotFoundError{Address: text, Which: which}
		}
		return geo.Location{}, asUnavailable(ServiceGeocoder, err)
	}
	return loc, nil
}

func (r *Resolver) route(ctx context.Context, from, to geo.Location, mode string) (float64, error) {
	if err := r.awaitService(ctx, ServiceRouter); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RouteTimeout)
	defer cancel()

	meters, err := r.router.Route(ctx, from, to, mode)
	if err != nil {
		if errors.Is(err, ErrRouteNotFound) {
			return 0, err
		}
		return 0, asUnavailable(ServiceRouter, err)
	}
	return meters, nil
}

// awaitService waits a bounded time for a service reported down
func (r *Resolver) awaitService(ctx context.Context, service string) error {
	if r.cfg.Availability == nil || r.cfg.Availability.Available(service) {
		return nil
	}

	deadline := time.NewTimer(r.cfg.DependencyWait)
	defer deadline.Stop()
	ticker := time.NewTicker(availabilityPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &UnavailableError{Service: service, Err: ctx.Err()}
		case <-deadline.C:
			return &UnavailableError{Service: service, Err: errors.New("not available")}
		case <-ticker.C:
			if r.cfg.Availability.Available(service) {
				return nil
			}
		}
	}
}

func (r *Resolver) report(precision, outcome string) {
	if r.cfg.OnResolve != nil {
		r.cfg.OnResolve(precision, outcome)
	}
}

func asUnavailable(service string, err error) error {
	if errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return &UnavailableError{Service: service, Err: err}
}

func newResult(km float64, precision string, from, to geo.Location) Result {
	return Result{
		Km:          emissions.Round2(km),
		RawKm:       km,
		Precision:   precision,
		Origin:      from,
		Destination: to,
	}
}

// validKm reports whether km is usable. Callers pass the rounded value so
// that sub-10 m distances are rejected rather than reported as 0 km.
func validKm(km float64) bool {
	return km > 0 && !math.IsNaN(km) && !math.IsInf(km, 0)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrPlaceNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrRouteNotFound):
		return OutcomeNoRoute
	case errors.Is(err, ErrInvalidDistance):
		return OutcomeInvalid
	case errors.Is(err, ErrServiceUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeInvalidInput
	}
}
