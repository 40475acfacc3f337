package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
)

func TestParseAuthType(t *testing.T) {
	defer func(tok string) { httpAuthToken = tok }(httpAuthToken)

	tests := []struct {
		name    string
		value   string
		token   string
		want    core.AuthType
		wantErr bool
	}{
		{"none", "none", "", core.AuthNone, false},
		{"bearer upper case", "Bearer", "Zq8vN3rT1xKp5LmW9cYd", core.AuthBearer, false},
		{"basic", "basic", "front:Zq8vN3rT1xKp5LmW9cYd", core.AuthBasic, false},
		{"bearer without token", "bearer", "", "", true},
		{"unknown", "oauth", "x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpAuthToken = tt.token
			got, err := parseAuthType(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAuthType(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseAuthType(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestLoadTable(t *testing.T) {
	defer func(f string) { coefficientsFile = f }(coefficientsFile)

	coefficientsFile = ""
	table, err := loadTable()
	if err != nil {
		t.Fatalf("embedded table: %v", err)
	}
	if f, _ := table.Factor(emissions.Car); f != 0.12 {
		t.Errorf("car factor = %v, want 0.12", f)
	}

	path := filepath.Join(t.TempDir(), "coefficients.yaml")
	custom := `currency: USD
credit_size_kg: 1000
credit_unit_price: 10
price_range:
  min: 5
  max: 20
modes:
  car:
    factor: 0.2
    name: Car
  bus:
    factor: 0.1
    name: Bus
`
	if err := os.WriteFile(path, []byte(custom), 0o600); err != nil {
		t.Fatal(err)
	}
	coefficientsFile = path
	table, err = loadTable()
	if err != nil {
		t.Fatalf("custom table: %v", err)
	}
	if table.Currency() != "USD" {
		t.Errorf("currency = %s", table.Currency())
	}

	coefficientsFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadTable(); err == nil {
		t.Error("missing coefficients file should fail")
	}
}

func TestLoadRoutes(t *testing.T) {
	defer func(f string) { routesFile = f }(routesFile)

	routesFile = ""
	catalog, err := loadRoutes()
	if err != nil {
		t.Fatalf("embedded routes: %v", err)
	}
	if n := len(catalog.List()); n != 3 {
		t.Errorf("embedded catalog has %d routes, want 3", n)
	}

	path := filepath.Join(t.TempDir(), "routes.yaml")
	data := "routes:\n  - id: 7\n    origin: Recife, PE\n    destination: Natal, RN\n    distance_km: 290\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	routesFile = path
	catalog, err = loadRoutes()
	if err != nil {
		t.Fatalf("custom routes: %v", err)
	}
	if r, ok := catalog.Get(7); !ok || r.DistanceKm != 290 {
		t.Errorf("route 7 = %+v, %v", r, ok)
	}
}
