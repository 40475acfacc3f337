// Package routes holds the catalog of preset trips offered to users, each
// with a known road distance.
package routes

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultCatalog []byte

// ErrInvalidRoute is returned by Add for unusable input
var ErrInvalidRoute = errors.New("invalid route")

// Route is one preset trip
type Route struct {
	ID          int     `json:"id" yaml:"id"`
	Origin      string  `json:"origin" yaml:"origin"`
	Destination string  `json:"destination" yaml:"destination"`
	DistanceKm  float64 `json:"distance_km" yaml:"distance_km"`
}

// Catalog is a concurrency-safe, in-memory route list
type Catalog struct {
	mu     sync.RWMutex
	routes []Route
}

// Default returns the built-in catalog
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse builds a catalog from YAML
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Routes []Route `yaml:"routes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing route catalog: %w", err)
	}

	seen := make(map[int]bool, len(doc.Routes))
	for _, r := range doc.Routes {
		if seen[r.ID] {
			return nil, fmt.Errorf("parsing route catalog: duplicate id %d", r.ID)
		}
		seen[r.ID] = true
		if err := validate(r.Origin, r.Destination, r.DistanceKm); err != nil {
			return nil, fmt.Errorf("route %d: %w", r.ID, err)
		}
	}

	sort.Slice(doc.Routes, func(i, j int) bool { return doc.Routes[i].ID < doc.Routes[j].ID })
	return &Catalog{routes: doc.Routes}, nil
}

// Get looks up a route by id
func (c *Catalog) Get(id int) (Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

// List returns every route ordered by id
func (c *Catalog) List() []Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Route, len(c.routes))
	copy(out, c.routes)
	return out
}

// Add appends a route with the next free id (highest id + 1)
func (c *Catalog) Add(origin, destination string, km float64) (Route, error) {
	origin, destination = strings.TrimSpace(origin), strings.TrimSpace(destination)
	if err := validate(origin, destination, km); err != nil {
		return Route{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := 1
	for _, r := range c.routes {
		if r.ID >= id {
			id = r.ID + 1
		}
	}
	r := Route{ID: id, Origin: origin, Destination: destination, DistanceKm: km}
	c.routes = append(c.routes, r)
	return r, nil
}

func validate(origin, destination string, km float64) error {
	switch {
	case origin == "":
		return fmt.Errorf("%w: origin is required", ErrInvalidRoute)
	case destination == "":
		return fmt.Errorf("%w: destination is required", ErrInvalidRoute)
	case math.IsNaN(km) || math.IsInf(km, 0) || km <= 0:
		return fmt.Errorf("%w: distance must be greater than zero, got %v", ErrInvalidRoute, km)
	}
	return nil
}
