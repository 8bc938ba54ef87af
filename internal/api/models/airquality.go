package models

// Display is the current content of the text outputs and the marker layer.
type Display struct {
	Status     string       `json:"status"`
	Coordinate Point        `json:"coordinate"`
	Outputs    []TextOutput `json:"outputs"`
	Marker     *Marker      `json:"marker,omitempty"`
	UpdatedAt  *Timestamp   `json:"updatedAt,omitempty"`
}

// TextOutput is one labelled line of the air quality panel.
type TextOutput struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

// Marker is the point marker drawn at the reporting station.
type Marker struct {
	ID       string    `json:"id"`
	Position Point     `json:"position"`
	Color    string    `json:"color"`
	Size     float64   `json:"size"`
	Label    string    `json:"label"`
	Category string    `json:"category"`
	PlacedAt Timestamp `json:"placedAt"`
}

// PollerStatus describes the polling loop.
type PollerStatus struct {
	Running         bool       `json:"running"`
	Coordinate      Point      `json:"coordinate"`
	IntervalSeconds float64    `json:"intervalSeconds"`
	Generation      uint64     `json:"generation"`
	Fetches         int64      `json:"fetches"`
	Successes       int64      `json:"successes"`
	Failures        int64      `json:"failures"`
	Discarded       int64      `json:"discarded"`
	LastSuccessAt   *Timestamp `json:"lastSuccessAt,omitempty"`
	LastFailureAt   *Timestamp `json:"lastFailureAt,omitempty"`
	LastError       *string    `json:"lastError,omitempty"`
	LastErrorKind   *string    `json:"lastErrorKind,omitempty"`
}

// CoordinateRequest selects the coordinate to poll. Either Lat and Lon or
// Preset must be set.
type CoordinateRequest struct {
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Preset string   `json:"preset,omitempty"`
}

// Classification is the presentation of a single AQI value.
type Classification struct {
	AQI        float64 `json:"aqi"`
	Category   string  `json:"category"`
	Color      string  `json:"color"`
	MarkerSize float64 `json:"markerSize"`
}

// AQIBand is one classification band. Max is omitted for the open top band.
type AQIBand struct {
	Max        *float64 `json:"max,omitempty"`
	Category   string   `json:"category"`
	Color      string   `json:"color"`
	MarkerSize float64  `json:"markerSize"`
}
