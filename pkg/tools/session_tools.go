package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/NERVsystems/co2mcp/pkg/session"
	"github.com/NERVsystems/co2mcp/pkg/tracing"
)

// SessionStartInput defines the input for session_start
type SessionStartInput struct {
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Manual      bool   `json:"manual,omitempty"`
}

// SessionStartTool returns a tool definition for starting a route session
func SessionStartTool() mcp.Tool {
	return mcp.NewTool("session_start",
		mcp.WithDescription("Start a route session. A session remembers the origin, destination and resolved distance; editing an input forgets the distance until it is resolved again."),
		mcp.WithString("origin",
			mcp.Description("Where the trip starts"),
		),
		mcp.WithString("destination",
			mcp.Description("Where the trip ends"),
		),
		mcp.WithBoolean("manual",
			mcp.Description("Enter the distance by hand instead of resolving it"),
		),
	)
}

// HandleSessionStart implements session_start
func (r *Registry) HandleSessionStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("session_start", func(ctx context.Context, input SessionStartInput, logger *slog.Logger) (interface{}, error) {
		created := r.sessions.Create()

		var snap session.Snapshot
		err := r.sessions.With(created.ID(), func(s *session.Session) error {
			s.SetOrigin(input.Origin)
			s.SetDestination(input.Destination)
			s.SetManual(input.Manual)
			snap = s.Snapshot()
			return nil
		})
		if err != nil {
			return nil, err
		}
		tracing.SetAttributes(ctx, attribute.String(tracing.AttrSessionID, snap.ID))
		logger.Debug("session started", "session_id", snap.ID)
		return snap, nil
	})(ctx, req)
}

// SessionUpdateInput defines the input for session_update. Absent fields
// are left unchanged.
type SessionUpdateInput struct {
	SessionID           string        `json:"session_id"`
	Origin              *string       `json:"origin,omitempty"`
	Destination         *string       `json:"destination,omitempty"`
	Manual              *bool         `json:"manual,omitempty"`
	OriginLocation      *geo.Location `json:"origin_location,omitempty"`
	DestinationLocation *geo.Location `json:"destination_location,omitempty"`
}

// SessionUpdateOutput is the updated session
type SessionUpdateOutput struct {
	Session     session.Snapshot `json:"session"`
	Invalidated bool             `json:"invalidated"`
}

// SessionUpdateTool returns a tool definition for editing a session
func SessionUpdateTool() mcp.Tool {
	return mcp.NewTool("session_update",
		mcp.WithDescription("Change a route session's inputs. Changing any input forgets a resolved distance."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by session_start"),
		),
		mcp.WithString("origin",
			mcp.Description("New origin text"),
		),
		mcp.WithString("destination",
			mcp.Description("New destination text"),
		),
		mcp.WithBoolean("manual",
			mcp.Description("Switch manual distance entry on or off"),
		),
		mcp.WithObject("origin_location",
			mcp.Description("Pick the origin coordinate as {latitude, longitude} instead of geocoding the text"),
		),
		mcp.WithObject("destination_location",
			mcp.Description("Pick the destination coordinate as {latitude, longitude} instead of geocoding the text"),
		),
	)
}

// HandleSessionUpdate implements session_update
func (r *Registry) HandleSessionUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("session_update", func(ctx context.Context, input SessionUpdateInput, logger *slog.Logger) (interface{}, error) {
		if err := core.RequireString("session_id", input.SessionID); err != nil {
			return nil, err
		}
		tracing.SetAttributes(ctx, attribute.String(tracing.AttrSessionID, input.SessionID))

		var out SessionUpdateOutput
		err := r.sessions.With(input.SessionID, func(s *session.Session) error {
			wasResolved := s.State() == session.Resolved

			// text first: a text change drops the selected place for that end
			if input.Origin != nil {
				s.SetOrigin(*input.Origin)
			}
			if input.Destination != nil {
				s.SetDestination(*input.Destination)
			}
			if input.Manual != nil {
				s.SetManual(*input.Manual)
			}
			if input.OriginLocation != nil {
				if err := s.SelectPlace(distance.Origin, *input.OriginLocation); err != nil {
					return core.NewValidationError(core.ErrInvalidParameter, err.Error()).
						WithQuery(input.OriginLocation.String())
				}
			}
			if input.DestinationLocation != nil {
				if err := s.SelectPlace(distance.Destination, *input.DestinationLocation); err != nil {
					return core.NewValidationError(core.ErrInvalidParameter, err.Error()).
						WithQuery(input.DestinationLocation.String())
				}
			}

			out.Session = s.Snapshot()
			out.Invalidated = wasResolved && s.State() == session.Unresolved
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})(ctx, req)
}

// SessionResolveInput defines the input for session_resolve
type SessionResolveInput struct {
	SessionID  string   `json:"session_id"`
	Mode       string   `json:"mode,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// SessionResolveOutput is the resolved session and, unless manual, the
// resolution it came from
type SessionResolveOutput struct {
	Session  session.Snapshot       `json:"session"`
	Distance *ResolveDistanceOutput `json:"distance,omitempty"`
}

// SessionResolveTool returns a tool definition for resolving a session
func SessionResolveTool() mcp.Tool {
	return mcp.NewTool("session_resolve",
		mcp.WithDescription("Resolve a route session's distance from its origin and destination, or record a typed-in distance in manual mode"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by session_start"),
		),
		mcp.WithString("mode",
			mcp.Description("Transport mode used to pick the road profile (default car)"),
		),
		mcp.WithNumber("distance_km",
			mcp.Description("Distance in km, required in manual mode and rejected otherwise"),
		),
	)
}

// HandleSessionResolve implements session_resolve. The session stays locked
// while resolving so a concurrent edit cannot be overwritten by a stale result.
func (r *Registry) HandleSessionResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("session_resolve", func(ctx context.Context, input SessionResolveInput, logger *slog.Logger) (interface{}, error) {
		if err := core.RequireString("session_id", input.SessionID); err != nil {
			return nil, err
		}
		tracing.SetAttributes(ctx, attribute.String(tracing.AttrSessionID, input.SessionID))
		mode, err := r.parseMode(input.Mode)
		if err != nil {
			return nil, err
		}

		var out SessionResolveOutput
		err = r.sessions.With(input.SessionID, func(s *session.Session) error {
			if input.DistanceKm != nil || s.Manual() {
				if !s.Manual() {
					return session.ErrNotManual
				}
				snap := s.Snapshot()
				if err := core.RequireString("origin", snap.Origin); err != nil {
					return err
				}
				if err := core.RequireString("destination", snap.Destination); err != nil {
					return err
				}
				km, err := requireNumber("distance_km", input.DistanceKm)
				if err != nil {
					return err
				}
				if err := s.SetManualDistance(km); err != nil {
					return err
				}
				out.Session = s.Snapshot()
				return nil
			}

			res, err := r.resolver.Resolve(ctx, s.Query(string(mode)))
			if err != nil {
				return err
			}
			if err := s.MarkResolved(res.Km, res.Precision); err != nil {
				return err
			}
			resolved := resolveOutput(res)
			out.Session = s.Snapshot()
			out.Distance = &resolved
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})(ctx, req)
}

// SessionEmissionsInput defines the input for session_emissions
type SessionEmissionsInput struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode,omitempty"`
}

// SessionEmissionsTool returns a tool definition for a session's emissions
func SessionEmissionsTool() mcp.Tool {
	return mcp.NewTool("session_emissions",
		mcp.WithDescription("Compute emissions for a resolved route session. Without a mode, lists every mode's emission; with a mode, returns the full comparison for it."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by session_start"),
		),
		mcp.WithString("mode",
			mcp.Description("Selected transport mode: bicycle, bus, car or truck"),
		),
	)
}

// HandleSessionEmissions implements session_emissions
func (r *Registry) HandleSessionEmissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("session_emissions", func(ctx context.Context, input SessionEmissionsInput, logger *slog.Logger) (interface{}, error) {
		if err := core.RequireString("session_id", input.SessionID); err != nil {
			return nil, err
		}
		tracing.SetAttributes(ctx, attribute.String(tracing.AttrSessionID, input.SessionID))

		var out interface{}
		err := r.sessions.With(input.SessionID, func(s *session.Session) error {
			if input.Mode == "" {
				res, err := s.Emissions(r.calc)
				if err != nil {
					return err
				}
				out = r.emissionsOutput(res)
				return nil
			}

			mode, err := r.parseMode(input.Mode)
			if err != nil {
				return err
			}
			cmp, err := s.Comparison(r.calc, mode)
			if err != nil {
				return err
			}
			out = r.comparisonOutput(cmp)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})(ctx, req)
}
