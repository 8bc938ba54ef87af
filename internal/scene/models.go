// Package scene holds the shared 3D viewer state: camera, basemap,
// highlight style and overlay toggles.
package scene

import (
	"errors"
	"fmt"
	"time"

	"github.com/cityscope/cityscope/internal/airquality"
)

// Validation errors.
var (
	ErrInvalidBasemap        = errors.New("invalid basemap")
	ErrInvalidHighlightStyle = errors.New("invalid highlight style")
	ErrInvalidLayer          = errors.New("invalid layer")
	ErrInvalidCamera         = errors.New("invalid camera")
	ErrLayerUnavailable      = errors.New("layer unavailable")
)

// DefaultViewID is the id of the single shared view.
const DefaultViewID = "default"

// Basemap is the base tileset shown under the overlays.
type Basemap string

const (
	BasemapPhotorealistic Basemap = "photorealistic"
	BasemapOSMBuildings   Basemap = "osm-buildings"
	BasemapSatellite      Basemap = "satellite"
)

// Basemaps lists every basemap.
var Basemaps = []Basemap{BasemapPhotorealistic, BasemapOSMBuildings, BasemapSatellite}

// HighlightStyle controls how buildings are colored.
type HighlightStyle string

const (
	HighlightNone     HighlightStyle = "none"
	HighlightHeight   HighlightStyle = "height"
	HighlightDistance HighlightStyle = "distance"
	HighlightProposed HighlightStyle = "proposed"
)

// HighlightStyles lists every highlight style.
var HighlightStyles = []HighlightStyle{HighlightNone, HighlightHeight, HighlightDistance, HighlightProposed}

// Layer is a toggleable overlay.
type Layer string

const (
	LayerHighlight        Layer = "highlight"
	LayerBuildings        Layer = "buildings"
	LayerWaterLevel       Layer = "water-level"
	LayerProposedBuilding Layer = "proposed-building"
)

// Layers lists every overlay.
var Layers = []Layer{LayerHighlight, LayerBuildings, LayerWaterLevel, LayerProposedBuilding}

// ParseBasemap validates a basemap name.
func ParseBasemap(s string) (Basemap, error) {
	for _, b := range Basemaps {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBasemap, s)
}

// ParseHighlightStyle validates a highlight style name.
func ParseHighlightStyle(s string) (HighlightStyle, error) {
	for _, h := range HighlightStyles {
		if string(h) == s {
			return h, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHighlightStyle, s)
}

// ParseLayer validates a layer name.
func ParseLayer(s string) (Layer, error) {
	for _, l := range Layers {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLayer, s)
}

// Camera is a fly-to target. Angles are in degrees.
type Camera struct {
	Destination airquality.Coordinate `json:"destination"`
	Height      float64               `json:"height"`
	Heading     float64               `json:"heading"`
	Pitch       float64               `json:"pitch"`
}

// Camera limits.
const (
	MinCameraHeight = 1.0
	MaxCameraHeight = 10_000_000.0
)

// Validate checks the camera is reachable.
func (c Camera) Validate() error {
	if err := c.Destination.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCamera, err)
	}
	if c.Height < MinCameraHeight || c.Height > MaxCameraHeight {
		return fmt.Errorf("%w: height %v out of range", ErrInvalidCamera, c.Height)
	}
	if c.Heading < 0 || c.Heading >= 360 {
		return fmt.Errorf("%w: heading %v out of range", ErrInvalidCamera, c.Heading)
	}
	if c.Pitch < -90 || c.Pitch > 0 {
		return fmt.Errorf("%w: pitch %v out of range", ErrInvalidCamera, c.Pitch)
	}
	return nil
}

// DefaultCamera looks down at the city center.
func DefaultCamera(center airquality.Coordinate) Camera {
	return Camera{
		Destination: center,
		Height:      1000,
		Heading:     0,
		Pitch:       -45,
	}
}

// View is the persisted viewer state.
type View struct {
	ID             string         `json:"id"`
	Camera         Camera         `json:"camera"`
	Basemap        Basemap        `json:"basemap"`
	HighlightStyle HighlightStyle `json:"highlight_style"`
	Layers         map[Layer]bool `json:"layers"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DefaultView returns the view a fresh session starts with.
func DefaultView(center airquality.Coordinate) *View {
	layers := make(map[Layer]bool, len(Layers))
	for _, l := range Layers {
		layers[l] = false
	}
	layers[LayerBuildings] = true

	return &View{
		ID:             DefaultViewID,
		Camera:         DefaultCamera(center),
		Basemap:        BasemapPhotorealistic,
		HighlightStyle: HighlightNone,
		Layers:         layers,
	}
}

// Clone returns a deep copy.
func (v *View) Clone() *View {
	c := *v
	c.Layers = make(map[Layer]bool, len(v.Layers))
	for k, on := range v.Layers {
		c.Layers[k] = on
	}
	return &c
}
