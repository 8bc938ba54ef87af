// Package airquality provides the air quality domain model and AQI classification.
package airquality

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fetch errors. Every failure of a provider fetch wraps exactly one of these.
var (
	ErrNetwork            = errors.New("air quality request failed")
	ErrParse              = errors.New("air quality response is not valid JSON")
	ErrUpstreamStatus     = errors.New("air quality provider returned a non-ok status")
	ErrMissingStationData = errors.New("air quality response has no station data")
)

// ErrInvalidCoordinate is returned when a coordinate is outside WGS84 bounds.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Error kinds used as log fields and metric attributes.
const (
	KindNetwork            = "network"
	KindParse              = "parse"
	KindUpstreamStatus     = "upstream_status"
	KindMissingStationData = "missing_station_data"
	KindUnknown            = "unknown"
)

// ErrorKind classifies a fetch error into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrUpstreamStatus):
		return KindUpstreamStatus
	case errors.Is(err, ErrMissingStationData):
		return KindMissingStationData
	default:
		return KindUnknown
	}
}

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DefaultCoordinate is the city center the viewer opens on (Amsterdam Centraal).
var DefaultCoordinate = Coordinate{Lat: 52.3676, Lon: 4.9041}

// Validate checks that the coordinate is within WGS84 bounds.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// String formats the coordinate as "lat;lon".
func (c Coordinate) String() string {
	return fmt.Sprintf("%g;%g", c.Lat, c.Lon)
}

// ParseCoordinate parses "lat;lon" (or "lat,lon") and validates the result.
func ParseCoordinate(s string) (Coordinate, error) {
	sep := ";"
	if !strings.Contains(s, sep) {
		sep = ","
	}
	latStr, lonStr, ok := strings.Cut(s, sep)
	if !ok {
		return Coordinate{}, fmt.Errorf("%w: %q is not lat;lon", ErrInvalidCoordinate, s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoordinate, latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoordinate, lonStr)
	}

	c := Coordinate{Lat: lat, Lon: lon}
	return c, c.Validate()
}

// Pollutant is a pollutant code as used by the provider's iaqi block.
type Pollutant string

const (
	PollutantCO   Pollutant = "co"
	PollutantNO2  Pollutant = "no2"
	PollutantO3   Pollutant = "o3"
	PollutantPM10 Pollutant = "pm10"
	PollutantPM25 Pollutant = "pm25"
	PollutantSO2  Pollutant = "so2"
)

// Pollutants lists the recognized pollutant codes in display order.
var Pollutants = []Pollutant{
	PollutantCO,
	PollutantNO2,
	PollutantO3,
	PollutantPM10,
	PollutantPM25,
	PollutantSO2,
}

var pollutantLabels = map[Pollutant]string{
	PollutantCO:   "CO",
	PollutantNO2:  "NO2",
	PollutantO3:   "O3",
	PollutantPM10: "PM10",
	PollutantPM25: "PM2.5",
	PollutantSO2:  "SO2",
}

// Label returns the human-readable label for the pollutant.
func (p Pollutant) Label() string {
	if l, ok := pollutantLabels[p]; ok {
		return l
	}
	return string(p)
}

// ParsePollutant returns the pollutant for a provider code, or false if it is not recognized.
func ParsePollutant(code string) (Pollutant, bool) {
	p := Pollutant(code)
	_, ok := pollutantLabels[p]
	return p, ok
}

// Reading is a single air quality observation for a coordinate.
// A new Reading is produced on every successful fetch; none are retained.
type Reading struct {
	// AQI is nil when the provider reports no data for the station ("-").
	AQI *float64

	StationName string

	// MeasuredAt is the provider's local measurement time, kept verbatim.
	MeasuredAt string

	// StationLocation is the monitoring station position, if reported.
	StationLocation *Coordinate

	// Samples holds the individual pollutant values that were present.
	Samples map[Pollutant]float64

	// Coordinate is the coordinate the reading was requested for.
	Coordinate Coordinate

	FetchedAt time.Time
}

// NewReading creates an empty reading for a coordinate.
func NewReading(coord Coordinate) *Reading {
	return &Reading{
		Samples:    make(map[Pollutant]float64),
		Coordinate: coord,
		FetchedAt:  time.Now(),
	}
}

// HasAQI reports whether the reading carries a numeric AQI.
func (r *Reading) HasAQI() bool {
	return r != nil && r.AQI != nil
}

// Sample returns the value for a pollutant and whether it was present.
func (r *Reading) Sample(p Pollutant) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.Samples[p]
	return v, ok
}

// Position returns the station location, falling back to the requested coordinate.
func (r *Reading) Position() Coordinate {
	if r.StationLocation != nil {
		return *r.StationLocation
	}
	return r.Coordinate
}
