package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
)

// ModeEmission is one mode's emission with a display string
type ModeEmission struct {
	Mode       emissions.Mode `json:"mode"`
	Name       string         `json:"name"`
	EmissionKg float64        `json:"emission_kg"`
	Display    string         `json:"display"`
}

// EmissionsOutput lists every mode's emission for one distance
type EmissionsOutput struct {
	DistanceKm float64        `json:"distance_km"`
	Baseline   emissions.Mode `json:"baseline"`
	Modes      []ModeEmission `json:"modes"`
}

// ComputeEmissionsInput defines the input for compute_emissions
type ComputeEmissionsInput struct {
	DistanceKm *float64 `json:"distance_km"`
}

// ComputeEmissionsTool returns a tool definition for per-mode emissions
func ComputeEmissionsTool() mcp.Tool {
	return mcp.NewTool("compute_emissions",
		mcp.WithDescription("Compute the kg of CO2 each transport mode emits over a distance"),
		mcp.WithNumber("distance_km",
			mcp.Required(),
			mcp.Description("Trip distance in kilometers"),
		),
	)
}

// HandleComputeEmissions implements compute_emissions
func (r *Registry) HandleComputeEmissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("compute_emissions", func(ctx context.Context, input ComputeEmissionsInput, logger *slog.Logger) (interface{}, error) {
		km, err := requireNumber("distance_km", input.DistanceKm)
		if err != nil {
			return nil, err
		}
		res, err := r.calc.AllEmissions(km)
		if err != nil {
			return nil, err
		}
		return r.emissionsOutput(res), nil
	})(ctx, req)
}

// ComputeSavingsInput defines the input for compute_savings
type ComputeSavingsInput struct {
	SelectedKg *float64 `json:"selected_kg"`
	BaselineKg *float64 `json:"baseline_kg"`
}

// SavingsOutput is the savings against the baseline with a summary line
type SavingsOutput struct {
	emissions.Savings
	Direction string `json:"direction"`
	Summary   string `json:"summary"`
}

// ComputeSavingsTool returns a tool definition for savings against the baseline
func ComputeSavingsTool() mcp.Tool {
	return mcp.NewTool("compute_savings",
		mcp.WithDescription("Compare the emission of a selected mode against the baseline mode (car)"),
		mcp.WithNumber("selected_kg",
			mcp.Required(),
			mcp.Description("kg of CO2 emitted by the selected mode"),
		),
		mcp.WithNumber("baseline_kg",
			mcp.Required(),
			mcp.Description("kg of CO2 emitted by the baseline mode"),
		),
	)
}

// HandleComputeSavings implements compute_savings
func (r *Registry) HandleComputeSavings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("compute_savings", func(ctx context.Context, input ComputeSavingsInput, logger *slog.Logger) (interface{}, error) {
		selected, err := requireNumber("selected_kg", input.SelectedKg)
		if err != nil {
			return nil, err
		}
		baseline, err := requireNumber("baseline_kg", input.BaselineKg)
		if err != nil {
			return nil, err
		}
		if err := core.ValidateAmount("selected_kg", selected); err != nil {
			return nil, err
		}
		if err := core.ValidateAmount("baseline_kg", baseline); err != nil {
			return nil, err
		}

		s := r.calc.Savings(selected, baseline)
		return SavingsOutput{
			Savings:   s,
			Direction: s.Direction(),
			Summary:   r.savingsSummary(s),
		}, nil
	})(ctx, req)
}

// ComputeCreditsInput defines the input for compute_credits
type ComputeCreditsInput struct {
	EmissionKg *float64 `json:"emission_kg"`
}

// CreditsOutput is a credit estimate with rounded display figures
type CreditsOutput struct {
	emissions.CreditEstimate
	Display CreditsDisplay `json:"display"`
}

// CreditsDisplay holds credits to 4 decimals and cost to 2
type CreditsDisplay struct {
	Credits float64        `json:"credits"`
	Cost    emissions.Cost `json:"cost"`
}

// ComputeCreditsTool returns a tool definition for carbon credit conversion
func ComputeCreditsTool() mcp.Tool {
	return mcp.NewTool("compute_credits",
		mcp.WithDescription("Convert kg of CO2 into carbon credits and their cost at the reference price and market range"),
		mcp.WithNumber("emission_kg",
			mcp.Required(),
			mcp.Description("kg of CO2 to offset"),
		),
	)
}

// HandleComputeCredits implements compute_credits
func (r *Registry) HandleComputeCredits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("compute_credits", func(ctx context.Context, input ComputeCreditsInput, logger *slog.Logger) (interface{}, error) {
		kg, err := requireNumber("emission_kg", input.EmissionKg)
		if err != nil {
			return nil, err
		}
		est, err := r.calc.Credits(kg)
		if err != nil {
			return nil, err
		}
		return creditsOutput(est), nil
	})(ctx, req)
}

// CompareTransportInput defines the input for compare_transport
type CompareTransportInput struct {
	DistanceKm *float64 `json:"distance_km"`
	Mode       string   `json:"mode"`
}

// ComparisonOutput is a full comparison with a one-line summary
type ComparisonOutput struct {
	Comparison emissions.Comparison `json:"comparison"`
	Summary    string               `json:"summary"`
}

// CompareTransportTool returns a tool definition for comparing every mode
func CompareTransportTool() mcp.Tool {
	return mcp.NewTool("compare_transport",
		mcp.WithDescription("Compare every transport mode over a distance: emission, percentage of the baseline, savings and credits for the selected mode"),
		mcp.WithNumber("distance_km",
			mcp.Required(),
			mcp.Description("Trip distance in kilometers"),
		),
		mcp.WithString("mode",
			mcp.Description("Selected transport mode: bicycle, bus, car or truck (default car)"),
		),
	)
}

// HandleCompareTransport implements compare_transport
func (r *Registry) HandleCompareTransport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("compare_transport", func(ctx context.Context, input CompareTransportInput, logger *slog.Logger) (interface{}, error) {
		km, err := requireNumber("distance_km", input.DistanceKm)
		if err != nil {
			return nil, err
		}
		mode, err := r.parseMode(input.Mode)
		if err != nil {
			return nil, err
		}
		cmp, err := r.calc.Compare(km, mode)
		if err != nil {
			return nil, err
		}
		return r.comparisonOutput(cmp), nil
	})(ctx, req)
}

// parseMode validates a mode name against the table. Empty means the baseline.
func (r *Registry) parseMode(name string) (emissions.Mode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return emissions.BaselineMode, nil
	}
	mode := emissions.Mode(name)
	if _, ok := r.calc.Table().Factor(mode); ok {
		return mode, nil
	}

	modes := r.calc.Table().Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return "", core.NewError(core.ErrUnknownMode, fmt.Sprintf("unknown transport mode %q", name)).
		WithQuery(name).
		WithSuggestions(names...).
		WithGuidance("Use one of the suggested transport modes.")
}

func (r *Registry) emissionsOutput(res emissions.Result) EmissionsOutput {
	out := EmissionsOutput{
		DistanceKm: res.DistanceKm,
		Baseline:   res.Baseline,
	}
	for _, m := range r.calc.Table().Modes() {
		kg := res.PerMode[m]
		out.Modes = append(out.Modes, ModeEmission{
			Mode:       m,
			Name:       r.calc.Table().Name(m),
			EmissionKg: kg,
			Display:    fmt.Sprintf("%.2f kg CO2", emissions.Round2(kg)),
		})
	}
	return out
}

func creditsOutput(est emissions.CreditEstimate) CreditsOutput {
	return CreditsOutput{
		CreditEstimate: est,
		Display: CreditsDisplay{
			Credits: emissions.Round4(est.Credits),
			Cost: emissions.Cost{
				Base: emissions.Round2(est.Cost.Base),
				Min:  emissions.Round2(est.Cost.Min),
				Max:  emissions.Round2(est.Cost.Max),
			},
		},
	}
}

func (r *Registry) comparisonOutput(cmp emissions.Comparison) ComparisonOutput {
	table := r.calc.Table()
	summary := fmt.Sprintf("%s emits %.2f kg CO2 over %.2f km. %s Offsetting it takes %.4f credits (%.2f %s).",
		table.Name(cmp.Selected),
		emissions.Round2(cmp.SelectedKg),
		emissions.Round2(cmp.DistanceKm),
		r.savingsSummary(cmp.Savings),
		emissions.Round4(cmp.Credits.Credits),
		emissions.Round2(cmp.Credits.Cost.Base),
		cmp.Credits.Currency,
	)
	return ComparisonOutput{Comparison: cmp, Summary: summary}
}

func (r *Registry) savingsSummary(s emissions.Savings) string {
	baseline := r.calc.Table().Name(emissions.BaselineMode)
	switch s.Direction() {
	case emissions.DirectionFewer:
		return fmt.Sprintf("That is %.2f kg CO2 less than %s (%.1f%% saved).", emissions.Round2(s.DeltaKg), baseline, s.Percent)
	case emissions.DirectionMore:
		return fmt.Sprintf("That is %.2f kg CO2 more than %s (%.1f%% more).", emissions.Round2(-s.DeltaKg), baseline, s.Percent)
	default:
		return fmt.Sprintf("That is the same as %s.", baseline)
	}
}

// requireNumber rejects a missing numeric argument
func requireNumber(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, core.NewError(core.ErrMissingParameter, fmt.Sprintf("%s is required", name)).
			WithGuidance(fmt.Sprintf("Provide %s as a number", name))
	}
	return *v, nil
}
