// Package render turns air quality readings into display state and applies
// that state to a visual surface (text outputs and a single map marker).
package render

import (
	"strconv"
	"time"

	"github.com/cityscope/cityscope/internal/airquality"
)

// Placeholder texts.
const (
	NotAvailable     = "N/A"
	DataNotAvailable = "Data not available"
)

// Field identifies one text output on the surface.
type Field string

const (
	FieldStation Field = "station"
	FieldTime    Field = "time"
	FieldAQI     Field = "aqi"
)

// PollutantField returns the text output for a pollutant.
func PollutantField(p airquality.Pollutant) Field {
	return Field(p)
}

// Fields returns every text output in display order.
func Fields() []Field {
	fields := []Field{FieldStation, FieldTime, FieldAQI}
	for _, p := range airquality.Pollutants {
		fields = append(fields, PollutantField(p))
	}
	return fields
}

// Label returns the caption shown before a field's value.
func (f Field) Label() string {
	switch f {
	case FieldStation:
		return "Station"
	case FieldTime:
		return "Time"
	case FieldAQI:
		return "AQI"
	default:
		return airquality.Pollutant(f).Label()
	}
}

// Status describes where the displayed state came from.
type Status string

const (
	StatusInitial     Status = "initial"
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
)

// Marker describes the single map marker.
type Marker struct {
	Position airquality.Coordinate
	Color    string
	Size     float64
	Label    string
	Category airquality.Category
}

// State is the complete display state: every text output plus the marker.
type State struct {
	Status Status
	Texts  map[Field]string

	// Marker is nil when no marker should be shown.
	Marker *Marker

	// Coordinate is the coordinate the state was rendered for.
	Coordinate airquality.Coordinate

	// UpdatedAt is the fetch time of the reading, or zero for placeholder states.
	UpdatedAt time.Time
}

// Text returns the rendered text for a field.
func (s State) Text(f Field) string {
	return s.Texts[f]
}

// Policy controls the presentation choices that are not dictated by the reading.
type Policy struct {
	// KeepMarkerOnFailure leaves the last marker on the map after a failed fetch.
	// The default removes it so the marker never outlives the text it belongs to.
	KeepMarkerOnFailure bool
}

// Initial returns the placeholder state shown before the first fetch completes.
func Initial() State {
	s := unavailable(State{})
	s.Status = StatusInitial
	return s
}

// Render computes the next display state. It has no side effects: the same
// arguments always produce an equal State.
func Render(prev State, coord airquality.Coordinate, reading *airquality.Reading, err error, policy Policy) State {
	if err != nil || reading == nil {
		next := unavailable(prev)
		next.Coordinate = coord
		if !policy.KeepMarkerOnFailure {
			next.Marker = nil
		}
		return next
	}

	texts := make(map[Field]string, len(airquality.Pollutants)+3)
	texts[FieldStation] = line(FieldStation, orNA(reading.StationName))
	texts[FieldTime] = line(FieldTime, orNA(reading.MeasuredAt))

	var marker *Marker
	if reading.HasAQI() {
		aqi := *reading.AQI
		texts[FieldAQI] = line(FieldAQI, formatValue(aqi))

		level := airquality.ClassifyAQI(aqi)
		marker = &Marker{
			Position: reading.Position(),
			Color:    level.Color,
			Size:     level.MarkerSize,
			Label:    formatValue(aqi),
			Category: level.Category,
		}
	} else {
		texts[FieldAQI] = line(FieldAQI, DataNotAvailable)
	}

	for _, p := range airquality.Pollutants {
		f := PollutantField(p)
		if v, ok := reading.Sample(p); ok {
			texts[f] = line(f, formatValue(v))
		} else {
			texts[f] = line(f, NotAvailable)
		}
	}

	return State{
		Status:     StatusOK,
		Texts:      texts,
		Marker:     marker,
		Coordinate: coord,
		UpdatedAt:  reading.FetchedAt,
	}
}

// unavailable returns prev with every text output reset to N/A.
func unavailable(prev State) State {
	texts := make(map[Field]string, len(airquality.Pollutants)+3)
	for _, f := range Fields() {
		texts[f] = line(f, NotAvailable)
	}
	return State{
		Status:     StatusUnavailable,
		Texts:      texts,
		Marker:     prev.Marker,
		Coordinate: prev.Coordinate,
	}
}

func line(f Field, value string) string {
	return f.Label() + ": " + value
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
