package emissions

import (
	"math"
)

// Result holds the emission of every configured mode for one distance
type Result struct {
	DistanceKm float64          `json:"distance_km"`
	PerMode    map[Mode]float64 `json:"per_mode"`
	Baseline   Mode             `json:"baseline"`
}

// BaselineKg returns the baseline mode's emission
func (r Result) BaselineKg() float64 {
	return r.PerMode[r.Baseline]
}

// Savings is the difference between a selected mode and the baseline.
// DeltaKg is positive when the selected mode emits less.
type Savings struct {
	DeltaKg float64 `json:"delta_kg"`
	Percent float64 `json:"percent"`
}

// Direction values reported by Savings.Direction
const (
	DirectionFewer = "fewer"
	DirectionMore  = "more"
	DirectionEqual = "equal"
)

// Direction reports whether the selected mode emits fewer, more, or the same
// amount as the baseline
func (s Savings) Direction() string {
	switch {
	case s.DeltaKg > 0:
		return DirectionFewer
	case s.DeltaKg < 0:
		return DirectionMore
	default:
		return DirectionEqual
	}
}

// Cost is the monetary equivalent of a number of carbon credits
type Cost struct {
	Base float64 `json:"base"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Calculator computes emissions, savings, and credit costs from a Table.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	table *Table
}

// NewCalculator creates a calculator bound to table
func NewCalculator(table *Table) *Calculator {
	return &Calculator{table: table}
}

// Table returns the coefficient table the calculator uses
func (c *Calculator) Table() *Table {
	return c.table
}

// Emission returns the kg of CO2 emitted travelling km with mode.
// Unknown modes emit 0.
func (c *Calculator) Emission(km float64, mode Mode) (float64, error) {
	if !validAmount(km) {
		return 0, invalidInput("distance", km)
	}
	factor, _ := c.table.Factor(mode)
	return km * factor, nil
}

// AllEmissions returns the emission for every mode in the table
func (c *Calculator) AllEmissions(km float64) (Result, error) {
	if !validAmount(km) {
		return Result{}, invalidInput("distance", km)
	}

	res := Result{
		DistanceKm: km,
		PerMode:    make(map[Mode]float64, len(c.table.modes)),
		Baseline:   BaselineMode,
	}
	for _, m := range c.table.modes {
		res.PerMode[m] = km * c.table.factors[m]
	}
	return res, nil
}

// RelativePercentage returns kg as a percentage of baselineKg, or 0 when the
// baseline is 0
func RelativePercentage(kg, baselineKg float64) float64 {
	if baselineKg == 0 {
		return 0
	}
	return kg / baselineKg * 100
}

// RelativePercentage is the package function bound to the calculator
func (c *Calculator) RelativePercentage(kg, baselineKg float64) float64 {
	return RelativePercentage(kg, baselineKg)
}

// ComputeSavings compares selectedKg against baselineKg
func ComputeSavings(selectedKg, baselineKg float64) Savings {
	delta := baselineKg - selectedKg
	s := Savings{DeltaKg: delta}
	if baselineKg > 0 {
		s.Percent = math.Abs(delta) / baselineKg * 100
	}
	return s
}

// Savings compares selectedKg against baselineKg
func (c *Calculator) Savings(selectedKg, baselineKg float64) Savings {
	return ComputeSavings(selectedKg, baselineKg)
}

// CarbonCredits converts kg of CO2 to credits
func (c *Calculator) CarbonCredits(kg float64) (float64, error) {
	if !validAmount(kg) {
		return 0, invalidInput("emission", kg)
	}
	return kg / c.table.creditSizeKg, nil
}

// Cost prices a number of credits at the reference price and the band edges
func (c *Calculator) Cost(credits float64) (Cost, error) {
	if !validAmount(credits) {
		return Cost{}, invalidInput("credits", credits)
	}
	return Cost{
		Base: credits * c.table.creditUnitPrice,
		Min:  credits * c.table.priceRange.Min,
		Max:  credits * c.table.priceRange.Max,
	}, nil
}

// ModeNames returns the display label of every configured mode
func (c *Calculator) ModeNames() map[Mode]string {
	out := make(map[Mode]string, len(c.table.names))
	for m, n := range c.table.names {
		out[m] = n
	}
	return out
}

func validAmount(v float64) bool {
	return isFinite(v) && v >= 0
}
