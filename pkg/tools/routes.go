package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/routes"
)

// ListPresetRoutesOutput lists the preset route catalog
type ListPresetRoutesOutput struct {
	Routes []routes.Route `json:"routes"`
	Count  int            `json:"count"`
}

// ListPresetRoutesTool returns a tool definition for listing preset routes
func ListPresetRoutesTool() mcp.Tool {
	return mcp.NewTool("list_preset_routes",
		mcp.WithDescription("List the preset routes with their known distances. Use a route's distance_km with compare_transport to skip resolution."),
	)
}

// HandleListPresetRoutes implements list_preset_routes
func (r *Registry) HandleListPresetRoutes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("list_preset_routes", func(ctx context.Context, _ struct{}, logger *slog.Logger) (interface{}, error) {
		list := r.routes.List()
		return ListPresetRoutesOutput{Routes: list, Count: len(list)}, nil
	})(ctx, req)
}

// AddPresetRouteInput defines the input for add_preset_route
type AddPresetRouteInput struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	DistanceKm  *float64 `json:"distance_km"`
}

// AddPresetRouteTool returns a tool definition for adding a preset route
func AddPresetRouteTool() mcp.Tool {
	return mcp.NewTool("add_preset_route",
		mcp.WithDescription("Add a route with a known distance to the preset catalog for this server's lifetime"),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Where the route starts"),
		),
		mcp.WithString("destination",
			mcp.Required(),
			mcp.Description("Where the route ends"),
		),
		mcp.WithNumber("distance_km",
			mcp.Required(),
			mcp.Description("Route distance in kilometers, greater than zero"),
		),
	)
}

// HandleAddPresetRoute implements add_preset_route
func (r *Registry) HandleAddPresetRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("add_preset_route", func(ctx context.Context, input AddPresetRouteInput, logger *slog.Logger) (interface{}, error) {
		km, err := requireNumber("distance_km", input.DistanceKm)
		if err != nil {
			return nil, err
		}
		if err := core.ValidateDistance(km); err != nil {
			return nil, err
		}
		route, err := r.routes.Add(input.Origin, input.Destination, km)
		if err != nil {
			return nil, err
		}
		logger.Info("preset route added", "id", route.ID, "origin", route.Origin, "destination", route.Destination)
		return route, nil
	})(ctx, req)
}
