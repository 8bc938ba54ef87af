// Package sink forwards rendered air quality readings to message brokers.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cityscope/cityscope/internal/airquality"
)

// EventTypeReading is the event type of every published reading.
const EventTypeReading = "air_quality.reading"

// Publisher publishes readings to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, reading *airquality.Reading) error
	Close() error
}

// Event is the wire payload of a published reading.
type Event struct {
	EventID    string             `json:"event_id"`
	Type       string             `json:"type"`
	OccurredAt time.Time          `json:"occurred_at"`
	Lat        float64            `json:"lat"`
	Lon        float64            `json:"lon"`
	Station    string             `json:"station,omitempty"`
	MeasuredAt string             `json:"measured_at,omitempty"`
	AQI        *float64           `json:"aqi"`
	Category   string             `json:"category,omitempty"`
	Color      string             `json:"color,omitempty"`
	Pollutants map[string]float64 `json:"pollutants,omitempty"`
}

// NewEvent builds the event for a reading.
func NewEvent(r *airquality.Reading) Event {
	e := Event{
		EventID:    "evt_" + uuid.NewString(),
		Type:       EventTypeReading,
		OccurredAt: r.FetchedAt.UTC(),
		Lat:        r.Coordinate.Lat,
		Lon:        r.Coordinate.Lon,
		Station:    r.StationName,
		MeasuredAt: r.MeasuredAt,
		AQI:        r.AQI,
	}

	if r.AQI != nil {
		level := airquality.ClassifyAQI(*r.AQI)
		e.Category = string(level.Category)
		e.Color = level.Color
	}

	if len(r.Samples) > 0 {
		e.Pollutants = make(map[string]float64, len(r.Samples))
		for p, v := range r.Samples {
			e.Pollutants[string(p)] = v
		}
	}
	return e
}

// Encode marshals the event for a reading.
func Encode(r *airquality.Reading) (Event, []byte, error) {
	e := NewEvent(r)
	data, err := json.Marshal(e)
	if err != nil {
		return Event{}, nil, err
	}
	return e, data, nil
}

// Fanout publishes to several publishers. Every publisher is attempted; the
// errors are joined.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, reading *airquality.Reading) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, reading); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
