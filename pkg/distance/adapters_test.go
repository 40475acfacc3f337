package distance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/osm"
)

// fakeServices serves Nominatim /search and OSRM /route from one server
func fakeServices(t *testing.T, routeStatus int, routeBody string) (*httptest.Server, *int32) {
	t.Helper()
	var routeCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/search":
			switch q := r.URL.Query().Get("q"); q {
			case "São Paulo, SP":
				w.Write([]byte(`[{"place_id":1,"lat":"-23.5505","lon":"-46.6333","display_name":"São Paulo"}]`))
			case "Rio de Janeiro, RJ":
				w.Write([]byte(`[{"place_id":2,"lat":"-22.9068","lon":"-43.1729","display_name":"Rio de Janeiro"}]`))
			default:
				w.Write([]byte(`[]`))
			}
		case strings.HasPrefix(r.URL.Path, "/route/v1/"):
			atomic.AddInt32(&routeCalls, 1)
			w.WriteHeader(routeStatus)
			w.Write([]byte(routeBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &routeCalls
}

func newTestResolver(server *httptest.Server, cfg Config) *Resolver {
	geocoder := NominatimGeocoder{Client: osm.NewGeocoder(osm.GeocoderOptions{BaseURL: server.URL})}
	opts := core.DefaultOSRMOptions()
	opts.BaseURL = server.URL
	opts.Client = server.Client()
	opts.RetryOptions = core.RetryOptions{MaxAttempts: 1}
	return NewResolver(geocoder, OSRMRouter{Options: opts}, cfg)
}

func TestAdaptersRouted(t *testing.T) {
	server, _ := fakeServices(t, http.StatusOK,
		`{"code":"Ok","routes":[{"distance":430000,"duration":19800}]}`)
	core.PurgeRouteCache()

	res, err := newTestResolver(server, Config{}).Resolve(context.Background(),
		Query{Origin: "São Paulo, SP", Destination: "Rio de Janeiro, RJ", Mode: "car"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Km != 430 || res.Precision != PrecisionRouted {
		t.Errorf("Resolve() = %+v, want 430 km routed", res)
	}
}

func TestAdaptersNoRouteFallsBack(t *testing.T) {
	server, _ := fakeServices(t, http.StatusBadRequest,
		`{"code":"NoRoute","message":"Impossible route between points"}`)
	core.PurgeRouteCache()

	res, err := newTestResolver(server, Config{}).Resolve(context.Background(),
		Query{Origin: "São Paulo, SP", Destination: "Rio de Janeiro, RJ"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Precision != PrecisionStraightLine {
		t.Errorf("Precision = %s, want straight-line", res.Precision)
	}
	if res.Km != 360.75 {
		t.Errorf("Km = %v, want 360.75", res.Km)
	}
}

func TestAdaptersPlaceNotFound(t *testing.T) {
	server, routeCalls := fakeServices(t, http.StatusOK, `{"code":"Ok","routes":[{"distance":1}]}`)
	core.PurgeRouteCache()

	_, err := newTestResolver(server, Config{}).Resolve(context.Background(),
		Query{Origin: "São Paulo, SP", Destination: "Lugar Nenhum"})
	var pnf *PlaceNotFoundError
	if !errors.As(err, &pnf) || pnf.Which != Destination {
		t.Fatalf("Resolve() error = %v, want destination PlaceNotFoundError", err)
	}
	if n := atomic.LoadInt32(routeCalls); n != 0 {
		t.Errorf("route requested %d times", n)
	}
}

func TestOSRMRouterErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no route", http.StatusBadRequest, `{"code":"NoRoute"}`, ErrRouteNotFound},
		{"no segment", http.StatusBadRequest, `{"code":"NoSegment","message":"Could not find a matching segment"}`, ErrRouteNotFound},
		{"invalid query", http.StatusBadRequest, `{"code":"InvalidQuery"}`, ErrServiceUnavailable},
		{"server error", http.StatusBadGateway, `{}`, ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := fakeServices(t, tt.status, tt.body)
			core.PurgeRouteCache()

			opts := core.DefaultOSRMOptions()
			opts.BaseURL = server.URL
			opts.Client = server.Client()
			opts.RetryOptions = core.RetryOptions{MaxAttempts: 1}

			_, err := OSRMRouter{Options: opts}.Route(context.Background(), saoPaulo, rio, "bicycle")
			if !errors.Is(err, tt.want) {
				t.Errorf("Route() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOSRMRouterProfile(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":1200}]}`))
	}))
	defer server.Close()
	core.PurgeRouteCache()

	opts := core.DefaultOSRMOptions()
	opts.BaseURL = server.URL
	opts.Client = server.Client()

	meters, err := OSRMRouter{Options: opts}.Route(context.Background(), saoPaulo, rio, "bicycle")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if meters != 1200 {
		t.Errorf("meters = %v", meters)
	}
	if !strings.HasPrefix(path, "/route/v1/cycling/") {
		t.Errorf("path = %s, want cycling profile", path)
	}
}

func TestNominatimGeocoderUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := NominatimGeocoder{Client: osm.NewGeocoder(osm.GeocoderOptions{BaseURL: server.URL})}
	_, err := g.Geocode(context.Background(), "São Paulo, SP")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Geocode() error = %v, want ErrServiceUnavailable", err)
	}
	var statusErr *osm.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected wrapped *osm.StatusError, got %v", err)
	}
}
