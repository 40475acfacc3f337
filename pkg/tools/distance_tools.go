package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/co2mcp/pkg/coords"
	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/geo"
)

// NoteStraightLine accompanies distances estimated without a road route
const NoteStraightLine = "No road route was found; this is a straight-line estimate and the real trip is longer."

// ResolveDistanceInput defines the input for resolve_distance
type ResolveDistanceInput struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Mode        string `json:"mode,omitempty"`
}

// ResolveDistanceOutput is a resolved distance with an optional caveat
type ResolveDistanceOutput struct {
	distance.Result
	Note string `json:"note,omitempty"`
}

// ResolveDistanceTool returns a tool definition for distance resolution
func ResolveDistanceTool() mcp.Tool {
	return mcp.NewTool("resolve_distance",
		mcp.WithDescription("Resolve the travel distance in km between two places. Places can be addresses, city names, or coordinates (decimal, DMS or MGRS). Falls back to a straight-line estimate when no road route exists."),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Where the trip starts"),
		),
		mcp.WithString("destination",
			mcp.Required(),
			mcp.Description("Where the trip ends"),
		),
		mcp.WithString("mode",
			mcp.Description("Transport mode used to pick the road profile: bicycle, bus, car or truck (default car)"),
		),
	)
}

// HandleResolveDistance implements resolve_distance
func (r *Registry) HandleResolveDistance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("resolve_distance", func(ctx context.Context, input ResolveDistanceInput, logger *slog.Logger) (interface{}, error) {
		if err := core.RequireString("origin", input.Origin); err != nil {
			return nil, err
		}
		if err := core.RequireString("destination", input.Destination); err != nil {
			return nil, err
		}
		mode, err := r.parseMode(input.Mode)
		if err != nil {
			return nil, err
		}

		res, err := r.resolver.Resolve(ctx, distance.Query{
			Origin:      input.Origin,
			Destination: input.Destination,
			Mode:        string(mode),
		})
		if err != nil {
			return nil, err
		}
		return resolveOutput(res), nil
	})(ctx, req)
}

// EstimateTripInput defines the input for estimate_trip
type EstimateTripInput struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Mode        string `json:"mode,omitempty"`
}

// EstimateTripOutput is a resolved distance and the comparison for it
type EstimateTripOutput struct {
	Distance ResolveDistanceOutput `json:"distance"`
	ComparisonOutput
}

// EstimateTripTool returns a tool definition for the one-shot trip estimate
func EstimateTripTool() mcp.Tool {
	return mcp.NewTool("estimate_trip",
		mcp.WithDescription("Resolve the distance between two places and compare the emissions of every transport mode for that trip"),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Where the trip starts"),
		),
		mcp.WithString("destination",
			mcp.Required(),
			mcp.Description("Where the trip ends"),
		),
		mcp.WithString("mode",
			mcp.Description("Selected transport mode: bicycle, bus, car or truck (default car)"),
		),
	)
}

// HandleEstimateTrip implements estimate_trip
func (r *Registry) HandleEstimateTrip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("estimate_trip", func(ctx context.Context, input EstimateTripInput, logger *slog.Logger) (interface{}, error) {
		if err := core.RequireString("origin", input.Origin); err != nil {
			return nil, err
		}
		if err := core.RequireString("destination", input.Destination); err != nil {
			return nil, err
		}
		mode, err := r.parseMode(input.Mode)
		if err != nil {
			return nil, err
		}

		res, err := r.resolver.Resolve(ctx, distance.Query{
			Origin:      input.Origin,
			Destination: input.Destination,
			Mode:        string(mode),
		})
		if err != nil {
			return nil, err
		}

		cmp, err := r.calc.Compare(res.Km, mode)
		if err != nil {
			return nil, err
		}

		return EstimateTripOutput{
			Distance:         resolveOutput(res),
			ComparisonOutput: r.comparisonOutput(cmp),
		}, nil
	})(ctx, req)
}

func resolveOutput(res distance.Result) ResolveDistanceOutput {
	out := ResolveDistanceOutput{Result: res}
	if res.Precision == distance.PrecisionStraightLine {
		out.Note = NoteStraightLine
	}
	return out
}

// GeoDistanceInput defines the input parameters for calculating distance
type GeoDistanceInput struct {
	From *geo.Location `json:"from"`
	To   *geo.Location `json:"to"`
}

// GeoDistanceOutput defines the output for distance calculation
type GeoDistanceOutput struct {
	Distance float64 `json:"distance"` // in meters
	Km       float64 `json:"km"`
	FromMGRS string  `json:"from_mgrs,omitempty"`
	ToMGRS   string  `json:"to_mgrs,omitempty"`
}

// GeoDistanceTool returns a tool definition for calculating geographic distance
func GeoDistanceTool() mcp.Tool {
	return mcp.NewTool("geo_distance",
		mcp.WithDescription("Calculate the great-circle distance between two geographic coordinates using the Haversine formula"),
		mcp.WithObject("from",
			mcp.Required(),
			mcp.Description("The starting point as {latitude, longitude}"),
		),
		mcp.WithObject("to",
			mcp.Required(),
			mcp.Description("The ending point as {latitude, longitude}"),
		),
	)
}

// HandleGeoDistance implements geographic distance calculation
func HandleGeoDistance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("geo_distance", func(ctx context.Context, input GeoDistanceInput, logger *slog.Logger) (interface{}, error) {
		if input.From == nil {
			return nil, core.NewError(core.ErrMissingParameter, "from is required").
				WithGuidance("Provide from as {latitude, longitude}")
		}
		if input.To == nil {
			return nil, core.NewError(core.ErrMissingParameter, "to is required").
				WithGuidance("Provide to as {latitude, longitude}")
		}
		if err := core.ValidateLocation(*input.From); err != nil {
			return nil, err
		}
		if err := core.ValidateLocation(*input.To); err != nil {
			return nil, err
		}

		meters := geo.HaversineDistance(
			input.From.Latitude, input.From.Longitude,
			input.To.Latitude, input.To.Longitude,
		)
		out := GeoDistanceOutput{
			Distance: meters,
			Km:       meters / 1000,
		}
		// MGRS is undefined near the poles; leave the grid refs empty there
		out.FromMGRS, _ = coords.ToMGRS(*input.From, 5)
		out.ToMGRS, _ = coords.ToMGRS(*input.To, 5)
		return out, nil
	})(ctx, req)
}
