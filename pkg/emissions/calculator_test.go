package emissions

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	table, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return NewCalculator(table)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestEmission(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name string
		km   float64
		mode Mode
		want float64
	}{
		{"car 430 km", 430, Car, 51.6},
		{"bus 430 km", 430, Bus, 38.27},
		{"truck 100 km", 100, Truck, 96},
		{"bicycle is zero", 1000, Bicycle, 0},
		{"zero distance", 0, Car, 0},
		{"unknown mode", 100, "plane", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Emission(tt.km, tt.mode)
			if err != nil {
				t.Fatalf("Emission() error = %v", err)
			}
			if !approx(got, tt.want) {
				t.Errorf("Emission(%v, %s) = %v, want %v", tt.km, tt.mode, got, tt.want)
			}
		})
	}
}

func TestEmissionInvalidInput(t *testing.T) {
	calc := newTestCalculator(t)

	for _, km := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := calc.Emission(km, Car); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Emission(%v) error = %v, want ErrInvalidInput", km, err)
		}
		if _, err := calc.AllEmissions(km); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AllEmissions(%v) error = %v, want ErrInvalidInput", km, err)
		}
	}
}

func TestEmissionScalesLinearly(t *testing.T) {
	calc := newTestCalculator(t)

	for _, mode := range calc.Table().Modes() {
		one, _ := calc.Emission(123.4, mode)
		three, _ := calc.Emission(3*123.4, mode)
		if !approx(three, 3*one) {
			t.Errorf("%s: emission(3d) = %v, 3*emission(d) = %v", mode, three, 3*one)
		}
	}
}

func TestAllEmissions(t *testing.T) {
	calc := newTestCalculator(t)

	res, err := calc.AllEmissions(430)
	if err != nil {
		t.Fatalf("AllEmissions() error = %v", err)
	}
	if res.Baseline != Car {
		t.Errorf("Baseline = %s, want car", res.Baseline)
	}
	if len(res.PerMode) != 4 {
		t.Errorf("PerMode has %d modes, want 4", len(res.PerMode))
	}
	if !approx(res.BaselineKg(), 51.6) {
		t.Errorf("BaselineKg() = %v, want 51.6", res.BaselineKg())
	}
	if res.PerMode[Bicycle] != 0 {
		t.Errorf("bicycle emission = %v, want 0", res.PerMode[Bicycle])
	}
}

func TestRelativePercentage(t *testing.T) {
	tests := []struct {
		kg, baseline, want float64
	}{
		{38.27, 51.6, 38.27 / 51.6 * 100},
		{51.6, 51.6, 100},
		{0, 51.6, 0},
		{10, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := RelativePercentage(tt.kg, tt.baseline); !approx(got, tt.want) {
			t.Errorf("RelativePercentage(%v, %v) = %v, want %v", tt.kg, tt.baseline, got, tt.want)
		}
	}
}

func TestSavings(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name       string
		selected   float64
		baseline   float64
		wantDelta  float64
		wantPct    float64
		wantDirect string
	}{
		{"bus saves", 38.27, 51.6, 13.33, 13.33 / 51.6 * 100, DirectionFewer},
		{"truck costs more", 412.8, 51.6, -361.2, 361.2 / 51.6 * 100, DirectionMore},
		{"same as baseline", 51.6, 51.6, 0, 0, DirectionEqual},
		{"bicycle saves all", 0, 51.6, 51.6, 100, DirectionFewer},
		{"zero baseline", 5, 0, -5, 0, DirectionMore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := calc.Savings(tt.selected, tt.baseline)
			if math.Abs(s.DeltaKg-tt.wantDelta) > 1e-6 {
				t.Errorf("DeltaKg = %v, want %v", s.DeltaKg, tt.wantDelta)
			}
			if math.Abs(s.Percent-tt.wantPct) > 1e-6 {
				t.Errorf("Percent = %v, want %v", s.Percent, tt.wantPct)
			}
			if s.Direction() != tt.wantDirect {
				t.Errorf("Direction() = %s, want %s", s.Direction(), tt.wantDirect)
			}
		})
	}
}

func TestCarbonCreditsAndCost(t *testing.T) {
	calc := newTestCalculator(t)

	credits, err := calc.CarbonCredits(51.6)
	if err != nil {
		t.Fatalf("CarbonCredits() error = %v", err)
	}
	if !approx(credits, 0.0516) {
		t.Errorf("CarbonCredits(51.6) = %v, want 0.0516", credits)
	}

	cost, err := calc.Cost(credits)
	if err != nil {
		t.Fatalf("Cost() error = %v", err)
	}
	if !approx(cost.Base, 2.322) {
		t.Errorf("Cost.Base = %v, want 2.322", cost.Base)
	}
	if !approx(cost.Min, 0.0516*25) || !approx(cost.Max, 0.0516*85) {
		t.Errorf("Cost band = [%v, %v]", cost.Min, cost.Max)
	}
	if cost.Min > cost.Base || cost.Base > cost.Max {
		t.Errorf("cost ordering violated: %+v", cost)
	}

	zero, err := calc.CarbonCredits(0)
	if err != nil || zero != 0 {
		t.Errorf("CarbonCredits(0) = %v, %v", zero, err)
	}

	if _, err := calc.CarbonCredits(-1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("CarbonCredits(-1) error = %v", err)
	}
	if _, err := calc.Cost(math.NaN()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Cost(NaN) error = %v", err)
	}
}

func TestCredits(t *testing.T) {
	calc := newTestCalculator(t)

	est, err := calc.Credits(1000)
	if err != nil {
		t.Fatalf("Credits() error = %v", err)
	}
	if est.Credits != 1 {
		t.Errorf("Credits = %v, want 1", est.Credits)
	}
	if est.Cost.Base != 45 || est.Cost.Min != 25 || est.Cost.Max != 85 {
		t.Errorf("Cost = %+v", est.Cost)
	}
	if est.Currency != "BRL" {
		t.Errorf("Currency = %q", est.Currency)
	}
}

func TestModeNames(t *testing.T) {
	calc := newTestCalculator(t)

	names := calc.ModeNames()
	if names[Car] != "Carro (médio, gasolina)" {
		t.Errorf("car label = %q", names[Car])
	}
	names[Car] = "changed"
	if calc.Table().Name(Car) == "changed" {
		t.Error("ModeNames() exposed internal map")
	}
}

func TestRounding(t *testing.T) {
	if Round2(2.322) != 2.32 {
		t.Errorf("Round2(2.322) = %v", Round2(2.322))
	}
	if Round2(51.599999999) != 51.6 {
		t.Errorf("Round2(51.599999999) = %v", Round2(51.599999999))
	}
	if Round4(0.05160001) != 0.0516 {
		t.Errorf("Round4(0.05160001) = %v", Round4(0.05160001))
	}
}
