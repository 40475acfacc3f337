package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/co2mcp/pkg/geo"
)

var (
	saoPaulo = geo.Location{Latitude: -23.5505, Longitude: -46.6333}
	rio      = geo.Location{Latitude: -22.9068, Longitude: -43.1729}
)

const okRoute = `{"code":"Ok","routes":[{"distance":430123.4,"duration":21000,"weight":21000,"weight_name":"routability"}],"waypoints":[]}`

func newOSRMServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &count
}

func testOptions(server *httptest.Server) OSRMOptions {
	options := DefaultOSRMOptions()
	options.BaseURL = server.URL
	options.Client = server.Client()
	options.RetryOptions = RetryOptions{MaxAttempts: 1}
	return options
}

func TestGetRouteRequestShape(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Write([]byte(okRoute))
	}))
	defer server.Close()
	PurgeRouteCache()

	meters, err := RouteDistance(context.Background(), saoPaulo, rio, testOptions(server))
	if err != nil {
		t.Fatalf("RouteDistance() error = %v", err)
	}
	if meters != 430123.4 {
		t.Errorf("RouteDistance() = %v, want 430123.4", meters)
	}

	// lon,lat order
	wantPath := "/route/v1/driving/-46.633300,-23.550500;-43.172900,-22.906800"
	if gotPath != wantPath {
		t.Errorf("path = %s, want %s", gotPath, wantPath)
	}
	if gotQuery != "overview=false" {
		t.Errorf("query = %s, want overview=false", gotQuery)
	}
}

func TestGetRouteCache(t *testing.T) {
	server, count := newOSRMServer(t, http.StatusOK, okRoute)
	PurgeRouteCache()
	options := testOptions(server)
	ctx := context.Background()

	r1, err := GetRoute(ctx, saoPaulo, rio, options)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := GetRoute(ctx, saoPaulo, rio, options)
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(count) != 1 {
		t.Fatalf("expected cache hit on second call, requests=%d", *count)
	}
	if r1 != r2 {
		t.Error("expected cached result")
	}

	if _, err := GetRoute(ctx, rio, saoPaulo, options); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("expected cache miss for reversed coords, requests=%d", *count)
	}
}

func TestGetRouteNoRoute(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"NoRoute with 400", http.StatusBadRequest, `{"code":"NoRoute","message":"Impossible route between points"}`},
		{"NoRoute with 200", http.StatusOK, `{"code":"NoRoute"}`},
		{"Ok with empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`},
		{"NoSegment", http.StatusBadRequest, `{"code":"NoSegment","message":"Could not find a matching segment for any coordinate."}`},
		{"NoMatch", http.StatusBadRequest, `{"code":"NoMatch"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newOSRMServer(t, tt.status, tt.body)
			PurgeRouteCache()

			_, err := GetRoute(context.Background(), saoPaulo, rio, testOptions(server))
			if !errors.Is(err, ErrNoRoute) {
				t.Fatalf("GetRoute() error = %v, want ErrNoRoute", err)
			}
		})
	}
}

func TestGetRouteOSRMError(t *testing.T) {
	server, _ := newOSRMServer(t, http.StatusBadRequest, `{"code":"InvalidQuery","message":"Query string malformed"}`)
	PurgeRouteCache()

	_, err := GetRoute(context.Background(), saoPaulo, rio, testOptions(server))
	var osrmErr *OSRMError
	if !errors.As(err, &osrmErr) {
		t.Fatalf("GetRoute() error = %v, want *OSRMError", err)
	}
	if osrmErr.Code != "InvalidQuery" {
		t.Errorf("Code = %s", osrmErr.Code)
	}
}

func TestGetRouteServerError(t *testing.T) {
	server, count := newOSRMServer(t, http.StatusInternalServerError, `{}`)
	PurgeRouteCache()

	options := testOptions(server)
	options.RetryOptions = RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	_, err := GetRoute(context.Background(), saoPaulo, rio, options)
	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) {
		t.Fatalf("expected *MCPError, got %T", err)
	}
	if mcpErr.Code != string(ErrInternalError) {
		t.Errorf("expected code %s, got %s", ErrInternalError, mcpErr.Code)
	}
	if atomic.LoadInt32(count) != 2 {
		t.Errorf("expected 2 attempts, got %d", *count)
	}
}

func TestGetRouteNotFoundStatus(t *testing.T) {
	server, count := newOSRMServer(t, http.StatusNotFound, `not found`)
	PurgeRouteCache()

	options := testOptions(server)
	options.RetryOptions.MaxAttempts = 3

	_, err := GetRoute(context.Background(), saoPaulo, rio, options)
	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrServiceUnavailable) {
		t.Fatalf("GetRoute() error = %v, want SERVICE_UNAVAILABLE", err)
	}
	// 4xx is not retried
	if atomic.LoadInt32(count) != 1 {
		t.Errorf("expected 1 attempt, got %d", *count)
	}
}

func TestGetRouteBadJSON(t *testing.T) {
	server, _ := newOSRMServer(t, http.StatusOK, `{"code":`)
	PurgeRouteCache()

	_, err := GetRoute(context.Background(), saoPaulo, rio, testOptions(server))
	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) || mcpErr.Code != string(ErrParseError) {
		t.Fatalf("GetRoute() error = %v, want PARSE_ERROR", err)
	}
}

func TestProfileForMode(t *testing.T) {
	tests := map[string]string{
		"car":     "driving",
		"truck":   "driving",
		"bus":     "driving",
		"":        "driving",
		"bicycle": "cycling",
		"Bike":    "cycling",
		"walking": "walking",
	}
	for mode, want := range tests {
		if got := ProfileForMode(mode); got != want {
			t.Errorf("ProfileForMode(%q) = %s, want %s", mode, got, want)
		}
	}
}

func TestOSRMErrorMessage(t *testing.T) {
	err := &OSRMError{Code: "TooBig"}
	if !strings.Contains(err.Error(), "TooBig") {
		t.Errorf("Error() = %s", err.Error())
	}
}
