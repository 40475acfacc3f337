package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/monitoring"
	"github.com/NERVsystems/co2mcp/pkg/tools"
)

func newTestAPI(t *testing.T, router stubRouter) *Handler {
	t.Helper()
	s, table := newTestServer(t, router)
	return NewHandler(discardLogger(), s.Registry(), table)
}

func doAPI(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestAPIStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		router stubRouter
		method string
		path   string
		body   string
		status int
		code   core.ErrorCode
	}{
		{"emissions", stubRouter{}, http.MethodPost, "/api/emissions", `{"distance_km": 430}`, http.StatusOK, ""},
		{"negative distance", stubRouter{}, http.MethodPost, "/api/emissions", `{"distance_km": -1}`, http.StatusBadRequest, core.ErrInvalidInput},
		{"missing distance", stubRouter{}, http.MethodPost, "/api/emissions", ``, http.StatusBadRequest, core.ErrMissingParameter},
		{"malformed body", stubRouter{}, http.MethodPost, "/api/credits", `{"emission_kg":`, http.StatusBadRequest, core.ErrParseError},
		{"unknown mode", stubRouter{}, http.MethodPost, "/api/compare", `{"distance_km": 10, "mode": "rocket"}`, http.StatusBadRequest, core.ErrUnknownMode},
		{"place not found", stubRouter{meters: 1000}, http.MethodPost, "/api/distance", `{"origin": "São Paulo, SP", "destination": "Atlantis"}`, http.StatusNotFound, core.ErrPlaceNotFound},
		{"router down", stubRouter{err: errors.New("connection refused")}, http.MethodPost, "/api/distance", `{"origin": "São Paulo, SP", "destination": "Rio de Janeiro, RJ"}`, http.StatusServiceUnavailable, core.ErrServiceUnavailable},
		{"wrong method", stubRouter{}, http.MethodGet, "/api/emissions", ``, http.StatusMethodNotAllowed, ""},
		{"unknown endpoint", stubRouter{}, http.MethodGet, "/api/nothing", ``, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPI(t, tt.router)
			rec := doAPI(t, h, tt.method, tt.path, tt.body)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if tt.code != "" {
				var e core.MCPError
				decodeBody(t, rec, &e)
				if e.Code != string(tt.code) {
					t.Errorf("code = %s, want %s", e.Code, tt.code)
				}
			}
		})
	}
}

func TestAPICompare(t *testing.T) {
	h := newTestAPI(t, stubRouter{})

	rec := doAPI(t, h, http.MethodPost, "/api/compare", `{"distance_km": 430, "mode": "bus"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var out tools.ComparisonOutput
	decodeBody(t, rec, &out)
	if out.Comparison.Selected != emissions.Bus {
		t.Errorf("Selected = %s", out.Comparison.Selected)
	}
	if math.Abs(out.Comparison.SelectedKg-38.27) > 1e-6 {
		t.Errorf("SelectedKg = %v, want 38.27", out.Comparison.SelectedKg)
	}
	if math.Abs(out.Comparison.BaselineKg-51.6) > 1e-6 {
		t.Errorf("BaselineKg = %v, want 51.6", out.Comparison.BaselineKg)
	}
}

func TestAPIDistance(t *testing.T) {
	h := newTestAPI(t, stubRouter{err: distance.ErrRouteNotFound})

	rec := doAPI(t, h, http.MethodPost, "/api/distance", `{"origin": "São Paulo, SP", "destination": "Rio de Janeiro, RJ"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var out tools.ResolveDistanceOutput
	decodeBody(t, rec, &out)
	if out.Precision != distance.PrecisionStraightLine || out.Km != 360.75 {
		t.Errorf("got %+v", out)
	}
	if out.Note == "" {
		t.Error("straight-line result should carry a note")
	}
}

func TestAPIRoutes(t *testing.T) {
	h := newTestAPI(t, stubRouter{})

	rec := doAPI(t, h, http.MethodGet, "/api/routes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list tools.ListPresetRoutesOutput
	decodeBody(t, rec, &list)
	if list.Count != 3 {
		t.Fatalf("Count = %d, want 3", list.Count)
	}

	rec = doAPI(t, h, http.MethodPost, "/api/routes", `{"origin": "Curitiba, PR", "destination": "Florianópolis, SC", "distance_km": 300}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doAPI(t, h, http.MethodGet, "/api/routes/", "")
	decodeBody(t, rec, &list)
	if list.Count != 4 {
		t.Errorf("Count after add = %d, want 4", list.Count)
	}

	rec = doAPI(t, h, http.MethodDelete, "/api/routes", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
		t.Errorf("Allow = %q", allow)
	}
}

func TestAPIModes(t *testing.T) {
	h := newTestAPI(t, stubRouter{})

	rec := doAPI(t, h, http.MethodGet, "/api/modes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out ModesOutput
	decodeBody(t, rec, &out)

	want := []emissions.Mode{emissions.Bicycle, emissions.Bus, emissions.Car, emissions.Truck}
	if len(out.Modes) != len(want) {
		t.Fatalf("got %d modes", len(out.Modes))
	}
	for i, m := range out.Modes {
		if m.Mode != want[i] {
			t.Errorf("mode[%d] = %s, want %s", i, m.Mode, want[i])
		}
		if m.IsReference != (m.Mode == emissions.Car) {
			t.Errorf("mode %s is_baseline = %v", m.Mode, m.IsReference)
		}
	}
	if out.Currency != "BRL" || out.Baseline != emissions.Car {
		t.Errorf("currency %s baseline %s", out.Currency, out.Baseline)
	}

	rec = doAPI(t, h, http.MethodPost, "/api/modes", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestAPIRecordsMetrics(t *testing.T) {
	monitoring.APIRequestsTotal.Reset()
	h := newTestAPI(t, stubRouter{})

	doAPI(t, h, http.MethodPost, "/api/emissions", `{"distance_km": 10}`)
	doAPI(t, h, http.MethodPost, "/api/emissions", `{"distance_km": -1}`)

	if got := testutil.ToFloat64(monitoring.APIRequestsTotal.WithLabelValues("emissions", "2xx")); got != 1 {
		t.Errorf("2xx = %v, want 1", got)
	}
	if got := testutil.ToFloat64(monitoring.APIRequestsTotal.WithLabelValues("emissions", "4xx")); got != 1 {
		t.Errorf("4xx = %v, want 1", got)
	}
}
