package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/NERVsystems/co2mcp/pkg/monitoring"
	"github.com/NERVsystems/co2mcp/pkg/routes"
	"github.com/NERVsystems/co2mcp/pkg/session"
)

var (
	saoPaulo = geo.Location{Latitude: -23.5505, Longitude: -46.6333}
	rio      = geo.Location{Latitude: -22.9068, Longitude: -43.1729}
)

type stubGeocoder map[string]geo.Location

func (g stubGeocoder) Geocode(ctx context.Context, address string) (geo.Location, error) {
	if loc, ok := g[address]; ok {
		return loc, nil
	}
	return geo.Location{}, distance.ErrPlaceNotFound
}

type stubRouter struct {
	meters float64
	err    error
	calls  int32
}

func (r *stubRouter) Route(ctx context.Context, from, to geo.Location, mode string) (float64, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.meters, r.err
}

func newTestRegistry(t *testing.T, router *stubRouter) *Registry {
	t.Helper()

	table, err := emissions.Load()
	if err != nil {
		t.Fatalf("emissions.Load() error = %v", err)
	}
	catalog, err := routes.Default()
	if err != nil {
		t.Fatalf("routes.Default() error = %v", err)
	}
	geocoder := stubGeocoder{
		"São Paulo, SP":      saoPaulo,
		"Rio de Janeiro, RJ": rio,
	}

	return NewRegistry(slog.Default(), Services{
		Calculator: emissions.NewCalculator(table),
		Resolver:   distance.NewResolver(geocoder, router, distance.Config{}),
		Sessions:   session.NewStore(session.StoreOptions{}),
		Routes:     catalog,
	})
}

func callTool(t *testing.T, handler handlerFunc, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	if result == nil {
		t.Fatalf("%s: nil result", name)
	}
	return result
}

// assertErrorCode checks that result is an error result carrying code
func assertErrorCode(t *testing.T, result *mcp.CallToolResult, code core.ErrorCode) core.MCPError {
	t.Helper()
	AssertErrorResult(t, result, "expected an error result")
	var e core.MCPError
	if err := ParseResultJSON(result, &e); err != nil {
		t.Fatalf("error result is not an MCPError: %v", err)
	}
	if e.Code != string(code) {
		t.Errorf("code = %s, want %s (%s)", e.Code, code, e.Message)
	}
	return e
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func AssertErrorResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Fatalf("%s: got %s", message, ResultText(result))
	}
}

func AssertSuccessResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if IsErrorResult(result) {
		t.Fatalf("%s: %s", message, ResultText(result))
	}
}

func ParseResultJSON(result *mcp.CallToolResult, out any) error {
	return json.Unmarshal([]byte(ResultText(result)), out)
}

func TestGetToolDefinitions(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{})

	want := []string{
		"get_version",
		"resolve_distance",
		"geo_distance",
		"compute_emissions",
		"compute_savings",
		"compute_credits",
		"compare_transport",
		"estimate_trip",
		"list_preset_routes",
		"add_preset_route",
		"session_start",
		"session_update",
		"session_resolve",
		"session_emissions",
	}

	defs := r.GetToolDefinitions()
	if len(defs) != len(want) {
		t.Fatalf("got %d tools, want %d", len(defs), len(want))
	}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("tool[%d] = %s, want %s", i, def.Name, want[i])
		}
		if def.Tool.Name != def.Name {
			t.Errorf("tool %s declares name %s", def.Name, def.Tool.Name)
		}
		if def.Handler == nil {
			t.Errorf("tool %s has no handler", def.Name)
		}
	}

	names := r.GetToolNames()
	if len(names) != len(want) || names[0] != "get_version" {
		t.Errorf("GetToolNames() = %v", names)
	}
}

func TestRegisterTools(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{})
	s := server.NewMCPServer("co2mcp-test", "1.0.0", server.WithToolCapabilities(true))

	r.RegisterAll(s)

	tools := s.ListTools()
	if len(tools) != len(r.GetToolDefinitions()) {
		t.Errorf("server has %d tools, want %d", len(tools), len(r.GetToolDefinitions()))
	}
	if _, ok := tools["compare_transport"]; !ok {
		t.Error("compare_transport not registered")
	}
}

func TestWrapWithTracingRecordsMetrics(t *testing.T) {
	monitoring.MCPRequestsTotal.Reset()
	r := newTestRegistry(t, &stubRouter{})

	wrapped := r.wrapWithTracing("compute_emissions", r.HandleComputeEmissions)

	callTool(t, wrapped, "compute_emissions", map[string]any{"distance_km": 10.0})
	callTool(t, wrapped, "compute_emissions", map[string]any{"distance_km": -1.0})

	if got := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("compute_emissions", "success")); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("compute_emissions", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestHandleGetVersion(t *testing.T) {
	result := callTool(t, HandleGetVersion, "get_version", nil)
	AssertSuccessResult(t, result, "get_version failed")

	var info VersionInfo
	if err := ParseResultJSON(result, &info); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Version == "" || info.GoVersion == "" || info.Platform == "" {
		t.Errorf("incomplete version info: %+v", info)
	}
}

func TestWithParsedInputRejectsWrongTypes(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{})

	result := callTool(t, r.HandleComputeEmissions, "compute_emissions", map[string]any{"distance_km": "far"})
	e := assertErrorCode(t, result, core.ErrParseError)
	if e.Guidance == "" {
		t.Error("parse error should carry a usage example")
	}
}
