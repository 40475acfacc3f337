package tools

import (
	"testing"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/session"
)

func startSession(t *testing.T, r *Registry, args map[string]any) session.Snapshot {
	t.Helper()
	result := callTool(t, r.HandleSessionStart, "session_start", args)
	AssertSuccessResult(t, result, "session_start failed")

	var snap session.Snapshot
	if err := ParseResultJSON(result, &snap); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return snap
}

func TestSessionLifecycle(t *testing.T) {
	router := &stubRouter{meters: 430000}
	r := newTestRegistry(t, router)

	snap := startSession(t, r, map[string]any{
		"origin":      "São Paulo, SP",
		"destination": "Rio de Janeiro, RJ",
	})
	if snap.ID == "" || snap.State != session.Unresolved {
		t.Fatalf("new session = %+v", snap)
	}

	// emissions before resolving are rejected
	result := callTool(t, r.HandleSessionEmissions, "session_emissions", map[string]any{"session_id": snap.ID})
	assertErrorCode(t, result, core.ErrRouteNotResolved)

	result = callTool(t, r.HandleSessionResolve, "session_resolve", map[string]any{"session_id": snap.ID})
	AssertSuccessResult(t, result, "session_resolve failed")
	var resolved SessionResolveOutput
	if err := ParseResultJSON(result, &resolved); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resolved.Session.State != session.Resolved || resolved.Session.DistanceKm != 430 {
		t.Errorf("resolved session = %+v", resolved.Session)
	}
	if resolved.Distance == nil || resolved.Distance.Precision != distance.PrecisionRouted {
		t.Errorf("Distance = %+v", resolved.Distance)
	}

	result = callTool(t, r.HandleSessionEmissions, "session_emissions", map[string]any{
		"session_id": snap.ID,
		"mode":       "car",
	})
	AssertSuccessResult(t, result, "session_emissions failed")
	var cmp ComparisonOutput
	if err := ParseResultJSON(result, &cmp); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !approxEqual(cmp.Comparison.SelectedKg, 51.6) {
		t.Errorf("SelectedKg = %v, want 51.6", cmp.Comparison.SelectedKg)
	}

	// editing the origin forgets the distance
	result = callTool(t, r.HandleSessionUpdate, "session_update", map[string]any{
		"session_id": snap.ID,
		"origin":     "Campinas, SP",
	})
	AssertSuccessResult(t, result, "session_update failed")
	var updated SessionUpdateOutput
	if err := ParseResultJSON(result, &updated); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !updated.Invalidated || updated.Session.State != session.Unresolved {
		t.Errorf("update = %+v", updated)
	}

	result = callTool(t, r.HandleSessionEmissions, "session_emissions", map[string]any{"session_id": snap.ID})
	assertErrorCode(t, result, core.ErrRouteNotResolved)
}

func TestSessionUpdateUnchangedKeepsResolution(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{meters: 430000})
	snap := startSession(t, r, map[string]any{
		"origin":      "São Paulo, SP",
		"destination": "Rio de Janeiro, RJ",
	})
	callTool(t, r.HandleSessionResolve, "session_resolve", map[string]any{"session_id": snap.ID})

	result := callTool(t, r.HandleSessionUpdate, "session_update", map[string]any{
		"session_id": snap.ID,
		"origin":     "São Paulo, SP",
	})
	var updated SessionUpdateOutput
	if err := ParseResultJSON(result, &updated); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if updated.Invalidated || updated.Session.State != session.Resolved {
		t.Errorf("unchanged origin invalidated the session: %+v", updated)
	}
}

func TestSessionSelectedPlaceSkipsGeocoding(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{meters: 5000})
	snap := startSession(t, r, map[string]any{
		"origin":      "Somewhere unknown",
		"destination": "Rio de Janeiro, RJ",
	})

	result := callTool(t, r.HandleSessionUpdate, "session_update", map[string]any{
		"session_id":      snap.ID,
		"origin_location": map[string]any{"latitude": saoPaulo.Latitude, "longitude": saoPaulo.Longitude},
	})
	AssertSuccessResult(t, result, "session_update failed")

	result = callTool(t, r.HandleSessionResolve, "session_resolve", map[string]any{"session_id": snap.ID})
	AssertSuccessResult(t, result, "selected origin should not be geocoded")

	result = callTool(t, r.HandleSessionUpdate, "session_update", map[string]any{
		"session_id":      snap.ID,
		"origin_location": map[string]any{"latitude": 123.0, "longitude": 0.0},
	})
	assertErrorCode(t, result, core.ErrInvalidParameter)
}

func TestSessionManualDistance(t *testing.T) {
	router := &stubRouter{meters: 430000}
	r := newTestRegistry(t, router)
	snap := startSession(t, r, map[string]any{
		"manual":      true,
		"origin":      "São Paulo, SP",
		"destination": "Rio de Janeiro, RJ",
	})

	tests := []struct {
		name string
		args map[string]any
		code core.ErrorCode
	}{
		{"missing distance", map[string]any{}, core.ErrMissingParameter},
		{"zero distance", map[string]any{"distance_km": 0.0}, core.ErrInvalidDistance},
		{"negative distance", map[string]any{"distance_km": -10.0}, core.ErrInvalidDistance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["session_id"] = snap.ID
			result := callTool(t, r.HandleSessionResolve, "session_resolve", tt.args)
			assertErrorCode(t, result, tt.code)
		})
	}

	result := callTool(t, r.HandleSessionResolve, "session_resolve", map[string]any{
		"session_id":  snap.ID,
		"distance_km": 120.5,
	})
	AssertSuccessResult(t, result, "manual resolve failed")
	var out SessionResolveOutput
	if err := ParseResultJSON(result, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Session.Precision != session.PrecisionManual || out.Session.DistanceKm != 120.5 {
		t.Errorf("session = %+v", out.Session)
	}
	if out.Distance != nil {
		t.Error("manual resolve should not report a resolution")
	}
	if router.calls != 0 {
		t.Errorf("router called %d times in manual mode", router.calls)
	}

	result = callTool(t, r.HandleSessionEmissions, "session_emissions", map[string]any{"session_id": snap.ID})
	AssertSuccessResult(t, result, "session_emissions failed")
	var em EmissionsOutput
	if err := ParseResultJSON(result, &em); err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, m := range em.Modes {
		if m.Mode == emissions.Bicycle && m.EmissionKg != 0 {
			t.Errorf("bicycle = %v kg", m.EmissionKg)
		}
	}
}

func TestSessionManualDistanceNeedsBothPlaces(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{meters: 430000})

	tests := []struct {
		name  string
		start map[string]any
	}{
		{"no places", map[string]any{"manual": true}},
		{"no destination", map[string]any{"manual": true, "origin": "São Paulo, SP"}},
		{"blank origin", map[string]any{"manual": true, "origin": "  ", "destination": "Rio de Janeiro, RJ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := startSession(t, r, tt.start)
			result := callTool(t, r.HandleSessionResolve, "session_resolve", map[string]any{
				"session_id":  snap.ID,
				"distance_km": 120.5,
			})
			assertErrorCode(t, result, core.ErrMissingParameter)

			got, err := r.sessions.Get(snap.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.State != session.Unresolved {
				t.Errorf("State = %s, want %s", got.State, session.Unresolved)
			}
		})
	}
}

func TestSessionDistanceRejectedOutsideManualMode(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{meters: 430000})
	snap := startSession(t, r, nil)

	result := callTool(t, r.HandleSessionResolve, "session_resolve", map[string]any{
		"session_id":  snap.ID,
		"distance_km": 50.0,
	})
	assertErrorCode(t, result, core.ErrInvalidParameter)
}

func TestSessionNotFound(t *testing.T) {
	r := newTestRegistry(t, &stubRouter{})

	handlers := map[string]func(*Registry) handlerFunc{
		"session_update":    func(r *Registry) handlerFunc { return r.HandleSessionUpdate },
		"session_resolve":   func(r *Registry) handlerFunc { return r.HandleSessionResolve },
		"session_emissions": func(r *Registry) handlerFunc { return r.HandleSessionEmissions },
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			result := callTool(t, h(r), name, map[string]any{"session_id": "no-such-session"})
			assertErrorCode(t, result, core.ErrSessionNotFound)
		})
	}

	result := callTool(t, r.HandleSessionUpdate, "session_update", map[string]any{})
	assertErrorCode(t, result, core.ErrMissingParameter)
}
