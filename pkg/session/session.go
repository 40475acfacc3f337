// Package session tracks one user's route entry: the origin and destination
// text, any places they picked, and whether a distance has been resolved for
// the current inputs. Emissions are only computed for a resolved route.
package session

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/NERVsystems/co2mcp/pkg/distance"
	"github.com/NERVsystems/co2mcp/pkg/emissions"
	"github.com/NERVsystems/co2mcp/pkg/geo"
)

// State is the resolution state of a session
type State string

const (
	Unresolved State = "unresolved"
	Resolved   State = "resolved"
)

// PrecisionManual marks a distance typed in by the user
const PrecisionManual = "manual"

var (
	// ErrRouteNotResolved means the inputs changed, or were never resolved
	ErrRouteNotResolved = errors.New("route not resolved: resolve the route first")

	// ErrNotManual means a manual distance was given outside manual mode
	ErrNotManual = errors.New("manual distance entry is not enabled")
)

// Session is the route entry state machine. Methods are not safe for
// concurrent use; Store serializes access.
type Session struct {
	id      string
	created time.Time

	mu sync.Mutex

	origin      string
	destination string
	originLoc   *geo.Location
	destLoc     *geo.Location
	manual      bool

	state      State
	distanceKm float64
	precision  string
}

// Snapshot is a read-only copy of a session
type Snapshot struct {
	ID                  string        `json:"id"`
	Origin              string        `json:"origin"`
	Destination         string        `json:"destination"`
	OriginLocation      *geo.Location `json:"origin_location,omitempty"`
	DestinationLocation *geo.Location `json:"destination_location,omitempty"`
	Manual              bool          `json:"manual"`
	State               State         `json:"state"`
	DistanceKm          float64       `json:"distance_km,omitempty"`
	Precision           string        `json:"precision,omitempty"`
	Created             time.Time     `json:"created"`
}

// New returns an unresolved session
func New(id string) *Session {
	return &Session{id: id, created: time.Now(), state: Unresolved}
}

func (s *Session) ID() string          { return s.id }
func (s *Session) State() State        { return s.state }
func (s *Session) DistanceKm() float64 { return s.distanceKm }
func (s *Session) Precision() string   { return s.precision }
func (s *Session) Manual() bool        { return s.manual }

// Snapshot copies the current state
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:                  s.id,
		Origin:              s.origin,
		Destination:         s.destination,
		OriginLocation:      copyLocation(s.originLoc),
		DestinationLocation: copyLocation(s.destLoc),
		Manual:              s.manual,
		State:               s.state,
		DistanceKm:          s.distanceKm,
		Precision:           s.precision,
		Created:             s.created,
	}
}

// Invalidate forgets the resolved distance
func (s *Session) Invalidate() {
	s.state = Unresolved
	s.distanceKm = 0
	s.precision = ""
}

// SetOrigin updates the origin text. A change invalidates the session and
// drops the selected origin place. It reports whether anything changed.
func (s *Session) SetOrigin(text string) bool {
	if text == s.origin {
		return false
	}
	s.origin = text
	s.originLoc = nil
	s.Invalidate()
	return true
}

// SetDestination is SetOrigin for the destination
func (s *Session) SetDestination(text string) bool {
	if text == s.destination {
		return false
	}
	s.destination = text
	s.destLoc = nil
	s.Invalidate()
	return true
}

// SetManual switches between resolved and typed-in distances
func (s *Session) SetManual(manual bool) bool {
	if manual == s.manual {
		return false
	}
	s.manual = manual
	s.Invalidate()
	return true
}

// SelectPlace pins the coordinate for one end, so resolution uses it
// instead of geocoding the text. which is distance.Origin or
// distance.Destination.
func (s *Session) SelectPlace(which string, loc geo.Location) error {
	if err := geo.ValidateCoords(loc.Latitude, loc.Longitude); err != nil {
		return err
	}

	var slot **geo.Location
	switch which {
	case distance.Origin:
		slot = &s.originLoc
	case distance.Destination:
		slot = &s.destLoc
	default:
		return fmt.Errorf("unknown place %q: want %s or %s", which, distance.Origin, distance.Destination)
	}

	if *slot != nil && **slot == loc {
		return nil
	}
	*slot = &loc
	s.Invalidate()
	return nil
}

// MarkResolved records a distance for the current inputs
func (s *Session) MarkResolved(km float64, precision string) error {
	if !validKm(km) {
		return fmt.Errorf("%w: %v km", distance.ErrInvalidDistance, km)
	}
	s.state = Resolved
	s.distanceKm = km
	s.precision = precision
	return nil
}

// SetManualDistance records a typed-in distance. Only valid in manual mode.
func (s *Session) SetManualDistance(km float64) error {
	if !s.manual {
		return ErrNotManual
	}
	return s.MarkResolved(km, PrecisionManual)
}

// Query builds the resolver query for the current inputs
func (s *Session) Query(mode string) distance.Query {
	return distance.Query{
		Origin:              strings.TrimSpace(s.origin),
		Destination:         strings.TrimSpace(s.destination),
		Mode:                mode,
		OriginLocation:      copyLocation(s.originLoc),
		DestinationLocation: copyLocation(s.destLoc),
	}
}

// Emissions computes every mode's emission for the resolved distance
func (s *Session) Emissions(calc *emissions.Calculator) (emissions.Result, error) {
	if s.state != Resolved {
		return emissions.Result{}, ErrRouteNotResolved
	}
	return calc.AllEmissions(s.distanceKm)
}

// Comparison builds the full comparison for the resolved distance
func (s *Session) Comparison(calc *emissions.Calculator, mode emissions.Mode) (emissions.Comparison, error) {
	if s.state != Resolved {
		return emissions.Comparison{}, ErrRouteNotResolved
	}
	return calc.Compare(s.distanceKm, mode)
}

func copyLocation(loc *geo.Location) *geo.Location {
	if loc == nil {
		return nil
	}
	c := *loc
	return &c
}

func validKm(km float64) bool {
	return km > 0 && !math.IsNaN(km) && !math.IsInf(km, 0)
}
