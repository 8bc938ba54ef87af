package models

// Camera is a camera pose over the scene.
type Camera struct {
	Destination Point   `json:"destination"`
	Height      float64 `json:"height"`
	Heading     float64 `json:"heading"`
	Pitch       float64 `json:"pitch"`
}

// SceneView is the shared viewer state.
type SceneView struct {
	Camera         Camera          `json:"camera"`
	Basemap        string          `json:"basemap"`
	HighlightStyle string          `json:"highlightStyle"`
	Layers         map[string]bool `json:"layers"`
	UpdatedAt      *Timestamp      `json:"updatedAt,omitempty"`
}

// BasemapRequest switches the basemap.
type BasemapRequest struct {
	Basemap string `json:"basemap"`
}

// HighlightStyleRequest switches the building highlight style.
type HighlightStyleRequest struct {
	Style string `json:"style"`
}

// LayerRequest toggles an overlay.
type LayerRequest struct {
	Enabled *bool `json:"enabled"`
}
