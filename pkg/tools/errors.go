package tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/routes"
	"github.com/NERVsystems/co2mcp/pkg/session"
)

// Common error guidance messages
const (
	GuidanceResolveFirst  = "Resolve the route with session_resolve before requesting emissions."
	GuidanceStartSession  = "The session expired or never existed. Start a new one with session_start."
	GuidanceManualMode    = "Enable manual mode with session_update before entering a distance."
	GuidanceInvalidAmount = "Amounts must be finite, non-negative numbers."
	GuidanceGeneral       = "Please try again later or modify your request parameters."
)

// ErrorResponse creates a plain error result
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ToMCPError maps a domain error to the structured error returned to
// callers. Errors that are already *core.MCPError pass through unchanged.
func ToMCPError(err error) *core.MCPError {
	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var placeErr *distance.PlaceNotFoundError
	switch {
	case errors.As(err, &placeErr):
		return core.NewError(core.ErrPlaceNotFound, err.Error()).
			WithQuery(placeErr.Address).
			WithGuidance(distance.Guidance(err))
	case errors.Is(err, distance.ErrRouteNotFound):
		return core.NewError(core.ErrRouteNotFound, err.Error()).
			WithGuidance(distance.Guidance(err))
	case errors.Is(err, distance.ErrServiceUnavailable):
		return core.NewError(core.ErrServiceUnavailable, err.Error()).
			WithGuidance(distance.Guidance(err))
	case errors.Is(err, distance.ErrInvalidDistance):
		return core.NewError(core.ErrInvalidDistance, err.Error()).
			WithGuidance(distance.Guidance(err))
	case errors.Is(err, session.ErrRouteNotResolved):
		return core.NewError(core.ErrRouteNotResolved, err.Error()).
			WithGuidance(GuidanceResolveFirst)
	case errors.Is(err, session.ErrNotFound):
		return core.NewError(core.ErrSessionNotFound, err.Error()).
			WithGuidance(GuidanceStartSession)
	case errors.Is(err, session.ErrNotManual):
		return core.NewError(core.ErrInvalidParameter, err.Error()).
			WithGuidance(GuidanceManualMode)
	case errors.Is(err, emissions.ErrInvalidInput):
		return core.NewError(core.ErrInvalidInput, err.Error()).
			WithGuidance(GuidanceInvalidAmount)
	case errors.Is(err, routes.ErrInvalidRoute):
		return core.NewValidationError(core.ErrInvalidInput, err.Error())
	default:
		// remaining resolver errors are rejected inputs (empty or bad literal)
		return core.NewError(core.ErrInvalidInput, err.Error()).
			WithGuidance(distance.Guidance(err))
	}
}

// ErrorResult converts any error into a tool error result
func ErrorResult(err error) *mcp.CallToolResult {
	return ToMCPError(err).ToMCPResult()
}

// parseError reports unparseable tool arguments with a usage example
func parseError(toolName string, err error) *core.MCPError {
	e := core.NewError(core.ErrParseError, fmt.Sprintf("invalid arguments: %v", err))
	if example := GetToolUsageExample(toolName); example != "" {
		e = e.WithGuidance("Example input: " + example)
	}
	return e
}

// GetToolUsageExample returns an example JSON snippet for using a specific tool
func GetToolUsageExample(toolName string) string {
	examples := map[string]string{
		"resolve_distance": `{
  "origin": "São Paulo, SP",
  "destination": "Rio de Janeiro, RJ",
  "mode": "car"
}`,
		"compute_emissions": `{
  "distance_km": 430
}`,
		"compute_savings": `{
  "selected_kg": 38.27,
  "baseline_kg": 51.6
}`,
		"compute_credits": `{
  "emission_kg": 51.6
}`,
		"compare_transport": `{
  "distance_km": 430,
  "mode": "bus"
}`,
		"estimate_trip": `{
  "origin": "Belo Horizonte, MG",
  "destination": "Salvador, BA",
  "mode": "bus"
}`,
		"add_preset_route": `{
  "origin": "Curitiba, PR",
  "destination": "Florianópolis, SC",
  "distance_km": 300
}`,
		"geo_distance": `{
  "from": {"latitude": -23.5505, "longitude": -46.6333},
  "to": {"latitude": -22.9068, "longitude": -43.1729}
}`,
		"session_update": `{
  "session_id": "0b8f3c1e-...",
  "origin": "São Paulo, SP",
  "destination": "Rio de Janeiro, RJ"
}`,
		"session_resolve": `{
  "session_id": "0b8f3c1e-...",
  "mode": "car"
}`,
		"session_emissions": `{
  "session_id": "0b8f3c1e-...",
  "mode": "bicycle"
}`,
	}

	return examples[toolName]
}
