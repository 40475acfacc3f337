package emissions

import "fmt"

// Band classifies a mode's emission relative to the baseline
type Band string

// Band thresholds are percentages of the baseline emission
const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// BandFor returns the band for a percentage of the baseline.
// Up to 50% is low, up to 100% is medium, above is high.
func BandFor(percent float64) Band {
	switch {
	case percent <= 50:
		return BandLow
	case percent <= 100:
		return BandMedium
	default:
		return BandHigh
	}
}

// ModeComparison is one row of a comparison
type ModeComparison struct {
	Mode              Mode    `json:"mode"`
	Name              string  `json:"name"`
	EmissionKg        float64 `json:"emission_kg"`
	PercentOfBaseline float64 `json:"percent_of_baseline"`
	Band              Band    `json:"band"`
	Selected          bool    `json:"selected"`
}

// CreditEstimate is the credit count and its cost for one emission
type CreditEstimate struct {
	EmissionKg float64 `json:"emission_kg"`
	Credits    float64 `json:"credits"`
	Cost       Cost    `json:"cost"`
	Currency   string  `json:"currency"`
}

// Comparison is the full result set for one trip: every mode against the
// baseline plus savings and credits for the selected mode
type Comparison struct {
	DistanceKm float64          `json:"distance_km"`
	Selected   Mode             `json:"selected"`
	Baseline   Mode             `json:"baseline"`
	Modes      []ModeComparison `json:"modes"`
	SelectedKg float64          `json:"selected_kg"`
	BaselineKg float64          `json:"baseline_kg"`
	Savings    Savings          `json:"savings"`
	Credits    CreditEstimate   `json:"credits"`
}

// Credits computes the credits and cost offsetting kg of CO2
func (c *Calculator) Credits(kg float64) (CreditEstimate, error) {
	credits, err := c.CarbonCredits(kg)
	if err != nil {
		return CreditEstimate{}, err
	}
	cost, err := c.Cost(credits)
	if err != nil {
		return CreditEstimate{}, err
	}
	return CreditEstimate{
		EmissionKg: kg,
		Credits:    credits,
		Cost:       cost,
		Currency:   c.table.currency,
	}, nil
}

// Compare builds the comparison of every mode for km, with savings and
// credits computed for selected. The selected mode must be in the table.
func (c *Calculator) Compare(km float64, selected Mode) (Comparison, error) {
	if _, ok := c.table.Factor(selected); !ok {
		return Comparison{}, fmt.Errorf("%w: unknown transport mode %q", ErrInvalidInput, selected)
	}

	all, err := c.AllEmissions(km)
	if err != nil {
		return Comparison{}, err
	}

	baselineKg := all.BaselineKg()
	selectedKg := all.PerMode[selected]

	cmp := Comparison{
		DistanceKm: km,
		Selected:   selected,
		Baseline:   all.Baseline,
		Modes:      make([]ModeComparison, 0, len(c.table.modes)),
		SelectedKg: selectedKg,
		BaselineKg: baselineKg,
		Savings:    ComputeSavings(selectedKg, baselineKg),
	}

	for _, m := range c.table.modes {
		kg := all.PerMode[m]
		pct := RelativePercentage(kg, baselineKg)
		cmp.Modes = append(cmp.Modes, ModeComparison{
			Mode:              m,
			Name:              c.table.Name(m),
			EmissionKg:        kg,
			PercentOfBaseline: pct,
			Band:              BandFor(pct),
			Selected:          m == selected,
		})
	}

	cmp.Credits, err = c.Credits(selectedKg)
	if err != nil {
		return Comparison{}, err
	}

	return cmp, nil
}
