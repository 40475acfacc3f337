package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/monitoring"
	"github.com/NERVsystems/co2mcp/pkg/tools"
)

// APIPrefix is where the JSON API is mounted
const APIPrefix = "/api/"

type toolHandler = func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

type apiRoute struct {
	method  string
	tool    string
	handler toolHandler
}

// Handler serves the JSON API used by the browser front end. Every endpoint
// runs the same tool handler as its MCP counterpart.
type Handler struct {
	logger *slog.Logger
	table  *emissions.Table
	routes map[string][]apiRoute
}

// ModeInfo describes one transport mode in the coefficient table
type ModeInfo struct {
	Mode        emissions.Mode `json:"mode"`
	Name        string         `json:"name"`
	FactorKgKm  float64        `json:"factor_kg_per_km"`
	IsReference bool           `json:"is_baseline"`
}

// ModesOutput is the body of GET /api/modes
type ModesOutput struct {
	Modes           []ModeInfo           `json:"modes"`
	Baseline        emissions.Mode       `json:"baseline"`
	CreditSizeKg    float64              `json:"credit_size_kg"`
	CreditUnitPrice float64              `json:"credit_unit_price"`
	PriceRange      emissions.PriceRange `json:"price_range"`
	Currency        string               `json:"currency"`
}

// NewHandler creates the JSON API handler
func NewHandler(logger *slog.Logger, registry *tools.Registry, table *emissions.Table) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger: logger,
		table:  table,
	}
	h.routes = map[string][]apiRoute{
		"distance":  {{http.MethodPost, "resolve_distance", registry.HandleResolveDistance}},
		"emissions": {{http.MethodPost, "compute_emissions", registry.HandleComputeEmissions}},
		"savings":   {{http.MethodPost, "compute_savings", registry.HandleComputeSavings}},
		"credits":   {{http.MethodPost, "compute_credits", registry.HandleComputeCredits}},
		"compare":   {{http.MethodPost, "compare_transport", registry.HandleCompareTransport}},
		"trip":      {{http.MethodPost, "estimate_trip", registry.HandleEstimateTrip}},
		"routes": {
			{http.MethodGet, "list_preset_routes", registry.HandleListPresetRoutes},
			{http.MethodPost, "add_preset_route", registry.HandleAddPresetRoute},
		},
	}
	return h
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := strings.Trim(strings.TrimPrefix(r.URL.Path, APIPrefix), "/")

	var status int
	var err error

	switch {
	case endpoint == "modes":
		status, err = h.handleModes(w, r)
	case h.routes[endpoint] != nil:
		status, err = h.handleTool(w, r, h.routes[endpoint])
	default:
		status = http.StatusNotFound
		err = writeJSON(w, status, map[string]string{"error": "unknown endpoint"})
		endpoint = "unknown"
	}

	monitoring.RecordAPIRequest(endpoint, status)

	duration := time.Since(start)
	if err != nil {
		h.logger.Error("api request failed",
			"endpoint", endpoint,
			"method", r.Method,
			"status", status,
			"duration", duration,
			"error", err)
	} else {
		h.logger.Debug("api request completed",
			"endpoint", endpoint,
			"method", r.Method,
			"status", status,
			"duration", duration)
	}
}

func (h *Handler) handleModes(w http.ResponseWriter, r *http.Request) (int, error) {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	out := ModesOutput{
		Baseline:        emissions.BaselineMode,
		CreditSizeKg:    h.table.CreditSizeKg(),
		CreditUnitPrice: h.table.CreditUnitPrice(),
		PriceRange:      h.table.PriceRange(),
		Currency:        h.table.Currency(),
	}
	for _, m := range h.table.Modes() {
		factor, _ := h.table.Factor(m)
		out.Modes = append(out.Modes, ModeInfo{
			Mode:        m,
			Name:        h.table.Name(m),
			FactorKgKm:  factor,
			IsReference: m == emissions.BaselineMode,
		})
	}
	return http.StatusOK, writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTool(w http.ResponseWriter, r *http.Request, candidates []apiRoute) (int, error) {
	var route *apiRoute
	allowed := make([]string, 0, len(candidates))
	for i := range candidates {
		allowed = append(allowed, candidates[i].method)
		if candidates[i].method == r.Method {
			route = &candidates[i]
		}
	}
	if route == nil {
		return methodNotAllowed(w, allowed...)
	}

	args, err := decodeArguments(r)
	if err != nil {
		e := core.NewError(core.ErrParseError, "request body is not a JSON object").
			WithGuidance(tools.GetToolUsageExample(route.tool))
		return e.HTTPStatus(), writeJSON(w, e.HTTPStatus(), e)
	}

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      route.tool,
			Arguments: args,
		},
	}
	result, err := route.handler(r.Context(), req)
	if err != nil {
		return http.StatusInternalServerError, err
	}

	content := tools.ResultText(result)
	status := http.StatusOK
	if result.IsError {
		status = errorStatus(content)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(content)); err != nil {
		return status, err
	}
	return status, nil
}

// decodeArguments reads a JSON object body. GET requests and empty bodies
// yield no arguments.
func decodeArguments(r *http.Request) (map[string]any, error) {
	args := map[string]any{}
	if r.Method == http.MethodGet || r.Body == nil {
		return args, nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return args, nil
}

// errorStatus maps an error result body onto an HTTP status
func errorStatus(content string) int {
	var e core.MCPError
	if err := json.Unmarshal([]byte(content), &e); err != nil || e.Code == "" {
		return http.StatusBadRequest
	}
	return e.HTTPStatus()
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) (int, error) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	return http.StatusMethodNotAllowed, writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
