package worker

import (
	"sort"
	"strings"

	"github.com/cityscope/cityscope/internal/airquality"
)

// Preset is a named location a set_coordinate command can refer to instead
// of raw lat/lon.
type Preset struct {
	Name       string
	Coordinate airquality.Coordinate
}

// DefaultPresets returns the built-in locations, keyed by lower-case name.
func DefaultPresets() map[string]Preset {
	presets := []Preset{
		{"amsterdam", airquality.Coordinate{Lat: 52.3676, Lon: 4.9041}},  // Amsterdam Centraal
		{"rotterdam", airquality.Coordinate{Lat: 51.9244, Lon: 4.4777}},  // Rotterdam Centraal
		{"den-haag", airquality.Coordinate{Lat: 52.0705, Lon: 4.3007}},   // Den Haag Centraal
		{"utrecht", airquality.Coordinate{Lat: 52.0894, Lon: 5.1102}},    // Utrecht Centraal
		{"eindhoven", airquality.Coordinate{Lat: 51.4416, Lon: 5.4697}},  // Eindhoven Centraal
		{"schiphol", airquality.Coordinate{Lat: 52.3105, Lon: 4.7683}},   // Schiphol Airport
		{"leiden", airquality.Coordinate{Lat: 52.1664, Lon: 4.4819}},     // Leiden Centraal
		{"haarlem", airquality.Coordinate{Lat: 52.3874, Lon: 4.6462}},    // Haarlem
		{"delft", airquality.Coordinate{Lat: 52.0116, Lon: 4.3571}},      // Delft
		{"amersfoort", airquality.Coordinate{Lat: 52.1530, Lon: 5.3711}}, // Amersfoort Centraal
	}

	m := make(map[string]Preset, len(presets))
	for _, p := range presets {
		m[p.Name] = p
	}
	return m
}

// LookupPreset finds a preset by case-insensitive name.
func LookupPreset(presets map[string]Preset, name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PresetNames returns the sorted preset names.
func PresetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
