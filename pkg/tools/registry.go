// Package tools provides the CO2 estimator MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/monitoring"
	"github.com/NERVsystems/co2mcp/pkg/routes"
	"github.com/NERVsystems/co2mcp/pkg/session"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

// Services are the domain components the tools call into
type Services struct {
	Calculator *emissions.Calculator
	Resolver   *distance.Resolver
	Sessions   *session.Store
	Routes     *routes.Catalog
}

// Registry contains all tool definitions and handlers
type Registry struct {
	logger *slog.Logger

	calc     *emissions.Calculator
	resolver *distance.Resolver
	sessions *session.Store
	routes   *routes.Catalog
}

// NewRegistry creates a new tool registry
func NewRegistry(logger *slog.Logger, svc Services) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		calc:     svc.Calculator,
		resolver: svc.Resolver,
		sessions: svc.Sessions,
		routes:   svc.Routes,
	}
}

// ToolDefinition represents a CO2 estimator MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this CO2 estimator MCP",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},

		// Distance tools
		{
			Name:        "resolve_distance",
			Description: "Resolve the travel distance between two places. Parameters: origin (string), destination (string), mode (string, optional)",
			Tool:        ResolveDistanceTool(),
			Handler:     r.HandleResolveDistance,
		},
		{
			Name:        "geo_distance",
			Description: "Calculate the straight-line distance between two points. Parameters: from (object with latitude/longitude), to (object with latitude/longitude)",
			Tool:        GeoDistanceTool(),
			Handler:     HandleGeoDistance,
		},

		// Emission tools
		{
			Name:        "compute_emissions",
			Description: "Compute the CO2 emission of every transport mode for a distance. Parameters: distance_km (number)",
			Tool:        ComputeEmissionsTool(),
			Handler:     r.HandleComputeEmissions,
		},
		{
			Name:        "compute_savings",
			Description: "Compare an emission against the baseline mode. Parameters: selected_kg (number), baseline_kg (number)",
			Tool:        ComputeSavingsTool(),
			Handler:     r.HandleComputeSavings,
		},
		{
			Name:        "compute_credits",
			Description: "Convert kg of CO2 into carbon credits and their cost. Parameters: emission_kg (number)",
			Tool:        ComputeCreditsTool(),
			Handler:     r.HandleComputeCredits,
		},
		{
			Name:        "compare_transport",
			Description: "Compare every transport mode for a distance against the baseline. Parameters: distance_km (number), mode (string)",
			Tool:        CompareTransportTool(),
			Handler:     r.HandleCompareTransport,
		},
		{
			Name:        "estimate_trip",
			Description: "Resolve a trip and compare every transport mode for it. Parameters: origin (string), destination (string), mode (string)",
			Tool:        EstimateTripTool(),
			Handler:     r.HandleEstimateTrip,
		},

		// Preset routes
		{
			Name:        "list_preset_routes",
			Description: "List the preset routes with known distances",
			Tool:        ListPresetRoutesTool(),
			Handler:     r.HandleListPresetRoutes,
		},
		{
			Name:        "add_preset_route",
			Description: "Add a preset route. Parameters: origin (string), destination (string), distance_km (number)",
			Tool:        AddPresetRouteTool(),
			Handler:     r.HandleAddPresetRoute,
		},

		// Route sessions
		{
			Name:        "session_start",
			Description: "Start a route session. Parameters: origin (string, optional), destination (string, optional), manual (boolean, optional)",
			Tool:        SessionStartTool(),
			Handler:     r.HandleSessionStart,
		},
		{
			Name:        "session_update",
			Description: "Change a route session's inputs. Any change invalidates a resolved route. Parameters: session_id (string) plus the fields to change",
			Tool:        SessionUpdateTool(),
			Handler:     r.HandleSessionUpdate,
		},
		{
			Name:        "session_resolve",
			Description: "Resolve a route session's distance. Parameters: session_id (string), mode (string, optional), distance_km (number, manual mode only)",
			Tool:        SessionResolveTool(),
			Handler:     r.HandleSessionResolve,
		},
		{
			Name:        "session_emissions",
			Description: "Compute emissions for a resolved route session. Parameters: session_id (string), mode (string, optional)",
			Tool:        SessionEmissionsTool(),
			Handler:     r.HandleSessionEmissions,
		},
	}

	return defs
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		// Wrap handler with tracing
		tracedHandler := r.wrapWithTracing(def.Name, def.Handler)
		mcpServer.AddTool(def.Tool, tracedHandler)
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing and request metrics
func (r *Registry) wrapWithTracing(toolName string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Start span
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()

		result, err := handler(ctx, req)

		duration := time.Since(startTime)
		durationMs := duration.Milliseconds()

		// Tool errors come back as error results, not Go errors
		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case IsErrorResult(result):
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		// Calculate result size
		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, durationMs, resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RegisterAll registers all tools with the MCP server.
func (r *Registry) RegisterAll(mcpServer *server.MCPServer) {
	r.RegisterTools(mcpServer)
}
