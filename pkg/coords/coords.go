// Package coords recognizes place inputs that are already coordinates, so
// the distance resolver can skip geocoding for them.
//
// Recognized literals:
//   - decimal degrees: "-23.5505, -46.6333" or "-23.5505 -46.6333"
//   - degrees/minutes/seconds: 23°33'02"S 46°38'00"W
//   - MGRS: "23KLP3325694903"
package coords

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/NERVsystems/co2mcp/pkg/geo"
	"github.com/akhenakh/mgrs"
)

// Format names the literal syntax a coordinate was written in
type Format string

const (
	FormatDecimal Format = "decimal"
	FormatDMS     Format = "dms"
	FormatMGRS    Format = "mgrs"
)

// ErrNotCoordinate is returned when the input is not a coordinate literal.
// Callers treat such text as an address to geocode.
var ErrNotCoordinate = errors.New("not a coordinate literal")

// Literal is a parsed coordinate literal
type Literal struct {
	Location geo.Location `json:"location"`
	Format   Format       `json:"format"`
	Input    string       `json:"input"`
}

var (
	// zone, band (no I/O), 100km square, even count of digits
	mgrsPattern = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

	dmsPattern = regexp.MustCompile(`(?i)^(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([NS])[\s,]+(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([EW])$`)

	decimalPattern = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)\s*[,\s]\s*([-+]?\d+(?:\.\d+)?)$`)
)

type parser struct {
	format Format
	match  *regexp.Regexp
	parse  func(input string, m []string) (geo.Location, error)

	// out-of-range values mean the text was never a coordinate, e.g. a
	// postal code written as two numbers
	rangeIsAddress bool
}

// most specific first
var parsers = []parser{
	{format: FormatMGRS, match: mgrsPattern, parse: parseMGRS},
	{format: FormatDMS, match: dmsPattern, parse: parseDMS},
	{format: FormatDecimal, match: decimalPattern, parse: parseDecimal, rangeIsAddress: true},
}

// Parse converts text to a coordinate if it is a recognized literal.
// It returns ErrNotCoordinate for anything that should be geocoded instead,
// including number pairs outside latitude/longitude range, and a
// descriptive error for DMS and MGRS literals with out-of-range values.
func Parse(text string) (*Literal, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return nil, ErrNotCoordinate
	}

	for _, p := range parsers {
		m := p.match.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		loc, err := p.parse(input, m)
		if err != nil {
			return nil, fmt.Errorf("%s coordinate %q: %w", p.format, input, err)
		}
		if err := geo.ValidateCoords(loc.Latitude, loc.Longitude); err != nil {
			if p.rangeIsAddress {
				return nil, ErrNotCoordinate
			}
			return nil, fmt.Errorf("%s coordinate %q: %w", p.format, input, err)
		}
		return &Literal{Location: loc, Format: p.format, Input: input}, nil
	}

	return nil, ErrNotCoordinate
}

// IsCoordinate reports whether text is meant as a coordinate literal,
// valid or not
func IsCoordinate(text string) bool {
	_, err := Parse(text)
	return !errors.Is(err, ErrNotCoordinate)
}

func parseMGRS(input string, _ []string) (geo.Location, error) {
	lat, lon, err := mgrs.MGRSToLatLng(strings.ToUpper(input))
	if err != nil {
		return geo.Location{}, err
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func parseDMS(_ string, m []string) (geo.Location, error) {
	lat, err := dmsToDecimal(m[1], m[2], m[3], 90)
	if err != nil {
		return geo.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := dmsToDecimal(m[5], m[6], m[7], 180)
	if err != nil {
		return geo.Location{}, fmt.Errorf("longitude: %w", err)
	}
	if strings.EqualFold(m[4], "S") {
		lat = -lat
	}
	if strings.EqualFold(m[8], "W") {
		lon = -lon
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func dmsToDecimal(deg, min, sec string, maxDeg float64) (float64, error) {
	d, _ := strconv.ParseFloat(deg, 64)
	mi, _ := strconv.ParseFloat(min, 64)
	s, _ := strconv.ParseFloat(sec, 64)
	if d > maxDeg || mi >= 60 || s >= 60 {
		return 0, fmt.Errorf("%s°%s'%s\" out of range", deg, min, sec)
	}
	return d + mi/60 + s/3600, nil
}

func parseDecimal(_ string, m []string) (geo.Location, error) {
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return geo.Location{}, err
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return geo.Location{}, err
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

// ToMGRS formats a location as MGRS. Precision 1-5 selects 10km to 1m;
// anything else means 1m.
func ToMGRS(loc geo.Location, precision int) (string, error) {
	if precision < 1 || precision > 5 {
		precision = 5
	}
	if err := geo.ValidateCoords(loc.Latitude, loc.Longitude); err != nil {
		return "", err
	}
	s, err := mgrs.LatLngToMGRS(loc.Latitude, loc.Longitude, precision)
	if err != nil {
		return "", fmt.Errorf("MGRS conversion failed: %w", err)
	}
	return s, nil
}
