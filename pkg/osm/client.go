// Package osm talks to the OpenStreetMap services used for distance
// resolution: Nominatim for geocoding and OSRM for routing. It owns the
// shared HTTP client, per-service rate limiting, and health checks.
package osm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

const (
	// DefaultUserAgent identifies this service to Nominatim and OSRM
	DefaultUserAgent = "co2mcp/0.1.0 (+https://github.com/NERVsystems/co2mcp)"

	// Public endpoints
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultOSRMURL      = "https://router.project-osrm.org"

	healthCheckTimeout = 10 * time.Second
)

// service is one rate-limited upstream
type service struct {
	name    string
	baseURL string
	host    string
	limiter *rate.Limiter
}

var (
	httpClient *http.Client

	servicesMu sync.RWMutex
	services   = map[string]*service{}

	userAgent     string
	userAgentLock sync.RWMutex
)

func init() {
	httpClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	// Nominatim usage policy allows at most one request per second
	ConfigureService(tracing.ServiceNominatim, DefaultNominatimURL, 1, 1)
	ConfigureService(tracing.ServiceOSRM, DefaultOSRMURL, 1, 1)

	SetUserAgent(DefaultUserAgent)
}

// ConfigureService sets the base URL and rate limit for a named upstream.
// Requests to hosts that are not configured are not throttled.
func ConfigureService(name, baseURL string, rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	svc := &service{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		host:    hostFromURL(baseURL),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}

	servicesMu.Lock()
	defer servicesMu.Unlock()
	services[name] = svc
}

// UpdateNominatimRateLimits replaces the Nominatim limiter, keeping its URL
func UpdateNominatimRateLimits(rps float64, burst int) {
	ConfigureService(tracing.ServiceNominatim, BaseURL(tracing.ServiceNominatim), rps, burst)
}

// UpdateOSRMRateLimits replaces the OSRM limiter, keeping its URL
func UpdateOSRMRateLimits(rps float64, burst int) {
	ConfigureService(tracing.ServiceOSRM, BaseURL(tracing.ServiceOSRM), rps, burst)
}

// BaseURL returns the configured base URL for a service, or "" if unknown
func BaseURL(name string) string {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	if svc, ok := services[name]; ok {
		return svc.baseURL
	}
	return ""
}

// SetUserAgent sets the User-Agent string
func SetUserAgent(ua string) {
	userAgentLock.Lock()
	defer userAgentLock.Unlock()
	userAgent = ua
}

// GetUserAgent returns the current User-Agent string
func GetUserAgent() string {
	userAgentLock.RLock()
	defer userAgentLock.RUnlock()
	return userAgent
}

// GetClient returns the shared HTTP client
func GetClient() *http.Client {
	return httpClient
}

func hostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}

// serviceFor finds the configured service for a request host
func serviceFor(req *http.Request) *service {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	for _, svc := range services {
		if svc.host != "" && svc.host == req.URL.Host {
			return svc
		}
	}
	return nil
}

// waitForRateLimit blocks until the request's service limiter admits it
func waitForRateLimit(ctx context.Context, req *http.Request) error {
	svc := serviceFor(req)
	if svc == nil {
		return nil
	}

	if svc.limiter.Allow() {
		return nil
	}

	startWait := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(
			attribute.String(tracing.AttrRateLimitService, svc.name),
		),
	)

	err := svc.limiter.Wait(ctx)

	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, svc.name),
		attribute.Int64(tracing.AttrRateLimitWaitMs, time.Since(startWait).Milliseconds()),
	)

	return err
}

// DoRequest performs an HTTP request with the User-Agent header and the
// service rate limit applied
func DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", GetUserAgent())

	if err := waitForRateLimit(ctx, req); err != nil {
		return nil, err
	}

	return httpClient.Do(req)
}

// NewRequest creates a GET request carrying the configured User-Agent
func NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", GetUserAgent())
	return req, nil
}

// RateLimitedTransport applies the per-service rate limit and User-Agent
// to every request. It lets clients built elsewhere (the OSRM client with
// retries) share the same throttling as DoRequest.
type RateLimitedTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = httpClient.Transport
	}

	if err := waitForRateLimit(req.Context(), req); err != nil {
		return nil, err
	}

	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", GetUserAgent())
	return base.RoundTrip(r)
}

// NewRateLimitedClient returns a client whose transport throttles per service
func NewRateLimitedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &RateLimitedTransport{},
	}
}

// CheckNominatimHealth checks that Nominatim answers its status endpoint
func CheckNominatimHealth(ctx context.Context) error {
	return checkService(ctx, tracing.ServiceNominatim, "/status", func(code int) bool {
		return code == http.StatusOK
	})
}

// CheckOSRMHealth checks that OSRM answers a trivial nearest query. Any
// non-5xx answer means the router is up.
func CheckOSRMHealth(ctx context.Context) error {
	return checkService(ctx, tracing.ServiceOSRM, "/nearest/v1/driving/0,0", func(code int) bool {
		return code < http.StatusInternalServerError
	})
}

func checkService(ctx context.Context, service, path string, healthy func(int) bool) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
	}

	req, err := NewRequest(ctx, BaseURL(service)+path)
	if err != nil {
		return fmt.Errorf("%s health check request: %w", service, err)
	}
	resp, err := DoRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", service, err)
	}
	defer resp.Body.Close()

	if !healthy(resp.StatusCode) {
		return &StatusError{Service: service, StatusCode: resp.StatusCode}
	}
	return nil
}
