package osm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

// ErrNoResults means Nominatim answered but matched nothing
var ErrNoResults = errors.New("no results")

// StatusError is a non-200 answer from an upstream service
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

const (
	defaultGeocodeCacheTTL  = 24 * time.Hour
	defaultGeocodeCacheSize = 4096
	maxSearchLimit          = 10
)

// Place is one geocoding match
type Place struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Location   geo.Location `json:"location"`
	Category   string       `json:"category,omitempty"`
	Type       string       `json:"type,omitempty"`
	Importance float64      `json:"importance,omitempty"`
}

// nominatimResult is the /search JSON shape; lat and lon are strings
type nominatimResult struct {
	PlaceID     int64   `json:"place_id"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// GeocoderOptions configures a Geocoder
type GeocoderOptions struct {
	// BaseURL overrides the configured Nominatim URL
	BaseURL string

	// CacheTTL is how long search results are reused; 0 means 24h
	CacheTTL time.Duration

	// CacheSize bounds the number of cached searches; 0 means 4096
	CacheSize int

	// CountryCodes restricts matches, e.g. []string{"br"}
	CountryCodes []string

	// Language is sent as accept-language
	Language string

	Logger *slog.Logger
}

// Geocoder resolves free-text addresses with Nominatim
type Geocoder struct {
	opts   GeocoderOptions
	cache  *expirable.LRU[string, []Place]
	logger *slog.Logger
}

// NewGeocoder creates a Nominatim geocoder
func NewGeocoder(opts GeocoderOptions) *Geocoder {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultGeocodeCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultGeocodeCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Geocoder{
		opts:   opts,
		cache:  expirable.NewLRU[string, []Place](opts.CacheSize, nil, opts.CacheTTL),
		logger: logger.With("service", tracing.ServiceNominatim),
	}
}

// CachedSearches returns how many searches are currently cached
func (g *Geocoder) CachedSearches() int {
	return g.cache.Len()
}

func (g *Geocoder) baseURL() string {
	if g.opts.BaseURL != "" {
		return strings.TrimRight(g.opts.BaseURL, "/")
	}
	return BaseURL(tracing.ServiceNominatim)
}

func searchCacheKey(query string, limit int) string {
	return strconv.Itoa(limit) + "|" + strings.ToLower(strings.TrimSpace(query))
}

// Search returns up to limit places matching query, best match first
func (g *Geocoder) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	ctx, span := tracing.StartSpan(ctx, "nominatim.search",
		trace.WithAttributes(tracing.ServiceAttributes(tracing.ServiceNominatim, "search", g.baseURL())...),
	)
	defer span.End()

	key := searchCacheKey(query, limit)
	places, hit := g.cache.Get(key)
	RecordCache(tracing.CacheTypeGeocode, hit)
	span.SetAttributes(tracing.CacheAttributes(tracing.CacheTypeGeocode, hit, key)...)
	if hit {
		g.logger.Debug("geocode cache hit", "query", query)
		return places, nil
	}

	reqURL, err := url.Parse(g.baseURL() + "/search")
	if err != nil {
		span.SetStatus(codes.Error, "invalid base url")
		return nil, fmt.Errorf("invalid nominatim url: %w", err)
	}
	q := reqURL.Query()
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	if len(g.opts.CountryCodes) > 0 {
		q.Set("countrycodes", strings.Join(g.opts.CountryCodes, ","))
	}
	if g.opts.Language != "" {
		q.Set("accept-language", g.opts.Language)
	}
	reqURL.RawQuery = q.Encode()

	req, err := NewRequest(ctx, reqURL.String())
	if err != nil {
		span.SetStatus(codes.Error, "request creation failed")
		return nil, err
	}

	resp, err := MonitoredDoRequest(ctx, req, "search")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		g.logger.Error("geocode request failed", "query", query, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int(tracing.AttrServiceStatus, resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Service: tracing.ServiceNominatim, StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("geocode returned error status", "query", query, "status", resp.StatusCode)
		return nil, err
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("decoding nominatim response: %w", err)
	}

	places = make([]Place, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil || geo.ValidateCoords(lat, lon) != nil {
			g.logger.Warn("skipping result with bad coordinates", "place_id", r.PlaceID, "lat", r.Lat, "lon", r.Lon)
			continue
		}
		places = append(places, Place{
			ID:         r.PlaceID,
			Name:       r.DisplayName,
			Location:   geo.Location{Latitude: lat, Longitude: lon},
			Category:   r.Class,
			Type:       r.Type,
			Importance: r.Importance,
		})
	}

	if len(places) > 0 {
		g.cache.Add(key, places)
	}
	span.SetStatus(codes.Ok, "")
	g.logger.Debug("geocoded", "query", query, "results", len(places))

	return places, nil
}

// Geocode returns the best match for address, or ErrNoResults
func (g *Geocoder) Geocode(ctx context.Context, address string) (Place, error) {
	places, err := g.Search(ctx, address, 1)
	if err != nil {
		return Place{}, err
	}
	if len(places) == 0 {
		return Place{}, fmt.Errorf("%w for %q", ErrNoResults, address)
	}
	return places[0], nil
}
