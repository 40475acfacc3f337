// Package emissions holds the coefficient table and the pure calculator that
// turns a travel distance into per-mode CO2 emissions, savings against the
// baseline mode, and an equivalent carbon-credit cost.
package emissions

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Mode identifies a transport mode. Unknown modes are legal values; they
// simply have no emission factor.
type Mode string

// Built-in transport modes
const (
	Bicycle Mode = "bicycle"
	Bus     Mode = "bus"
	Car     Mode = "car"
	Truck   Mode = "truck"
)

// BaselineMode is the reference mode for relative percentages and savings
const BaselineMode = Car

//go:embed coefficients.yaml
var defaultDefinition []byte

// PriceRange is the market price band for one carbon credit
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Table is the immutable coefficient table. It is built once at startup and
// shared by reference; nothing mutates it after Load.
type Table struct {
	factors         map[Mode]float64
	names           map[Mode]string
	modes           []Mode
	creditSizeKg    float64
	creditUnitPrice float64
	priceRange      PriceRange
	currency        string
}

// definition mirrors the YAML layout. Pointers distinguish missing fields
// from explicit zeros.
type definition struct {
	Currency        string   `yaml:"currency"`
	CreditSizeKg    *float64 `yaml:"credit_size_kg"`
	CreditUnitPrice *float64 `yaml:"credit_unit_price"`
	PriceRange      *struct {
		Min *float64 `yaml:"min"`
		Max *float64 `yaml:"max"`
	} `yaml:"price_range"`
	Modes map[Mode]struct {
		Factor *float64 `yaml:"factor"`
		Name   string   `yaml:"name"`
	} `yaml:"modes"`
}

// Load parses the embedded default coefficient table
func Load() (*Table, error) {
	return Parse(defaultDefinition)
}

// LoadFile parses a coefficient table from a YAML file
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Field: "file", Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse builds a Table from a YAML definition. Any malformed field yields a
// *ConfigurationError.
func Parse(data []byte) (*Table, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &ConfigurationError{Field: "document", Reason: err.Error()}
	}

	if def.CreditSizeKg == nil {
		return nil, missingField("credit_size_kg")
	}
	if !isFinite(*def.CreditSizeKg) || *def.CreditSizeKg <= 0 {
		return nil, &ConfigurationError{Field: "credit_size_kg", Reason: "must be a positive number"}
	}

	if def.CreditUnitPrice == nil {
		return nil, missingField("credit_unit_price")
	}
	if !isFinite(*def.CreditUnitPrice) || *def.CreditUnitPrice <= 0 {
		return nil, &ConfigurationError{Field: "credit_unit_price", Reason: "must be a positive number"}
	}

	if def.PriceRange == nil {
		return nil, missingField("price_range")
	}
	if def.PriceRange.Min == nil {
		return nil, missingField("price_range.min")
	}
	if def.PriceRange.Max == nil {
		return nil, missingField("price_range.max")
	}
	prMin, prMax := *def.PriceRange.Min, *def.PriceRange.Max
	if !isFinite(prMin) || prMin < 0 {
		return nil, &ConfigurationError{Field: "price_range.min", Reason: "must be a non-negative number"}
	}
	if !isFinite(prMax) || prMax < 0 {
		return nil, &ConfigurationError{Field: "price_range.max", Reason: "must be a non-negative number"}
	}
	if prMin > prMax {
		return nil, &ConfigurationError{
			Field:  "price_range",
			Reason: fmt.Sprintf("min %.2f is greater than max %.2f", prMin, prMax),
		}
	}

	if len(def.Modes) == 0 {
		return nil, missingField("modes")
	}

	t := &Table{
		factors:         make(map[Mode]float64, len(def.Modes)),
		names:           make(map[Mode]string, len(def.Modes)),
		creditSizeKg:    *def.CreditSizeKg,
		creditUnitPrice: *def.CreditUnitPrice,
		priceRange:      PriceRange{Min: prMin, Max: prMax},
		currency:        def.Currency,
	}

	for mode, md := range def.Modes {
		field := "modes." + string(mode) + ".factor"
		if md.Factor == nil {
			return nil, missingField(field)
		}
		if !isFinite(*md.Factor) || *md.Factor < 0 {
			return nil, &ConfigurationError{Field: field, Reason: "must be a non-negative number"}
		}
		t.factors[mode] = *md.Factor
		name := md.Name
		if name == "" {
			name = string(mode)
		}
		t.names[mode] = name
		t.modes = append(t.modes, mode)
	}

	if _, ok := t.factors[BaselineMode]; !ok {
		return nil, &ConfigurationError{
			Field:  "modes." + string(BaselineMode),
			Reason: "baseline mode must be defined",
		}
	}

	sort.Slice(t.modes, func(i, j int) bool { return t.modes[i] < t.modes[j] })

	return t, nil
}

// Factor returns the emission factor (kg CO2/km) for a mode
func (t *Table) Factor(mode Mode) (float64, bool) {
	f, ok := t.factors[mode]
	return f, ok
}

// Modes returns the configured modes in name order
func (t *Table) Modes() []Mode {
	out := make([]Mode, len(t.modes))
	copy(out, t.modes)
	return out
}

// Name returns the display label for a mode, or the mode itself when unknown
func (t *Table) Name(mode Mode) string {
	if n, ok := t.names[mode]; ok {
		return n
	}
	return string(mode)
}

// CreditSizeKg is the CO2 mass offset by one carbon credit
func (t *Table) CreditSizeKg() float64 { return t.creditSizeKg }

// CreditUnitPrice is the reference price of one credit
func (t *Table) CreditUnitPrice() float64 { return t.creditUnitPrice }

// PriceRange is the market band for one credit
func (t *Table) PriceRange() PriceRange { return t.priceRange }

// Currency is the ISO code used for cost figures
func (t *Table) Currency() string { return t.currency }

func missingField(field string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: "required field is missing"}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
