package models

// ClientConfig carries the values the browser viewer needs to boot.
type ClientConfig struct {
	TilesetAccessToken        string         `json:"tilesetAccessToken"`
	PhotorealisticAssetID     int            `json:"photorealisticAssetId"`
	ProposedBuildingAssetID   *string        `json:"proposedBuildingAssetId,omitempty"`
	ProposedBuildingAvailable bool           `json:"proposedBuildingAvailable"`
	Center                    Point          `json:"center"`
	PollIntervalSeconds       float64        `json:"pollIntervalSeconds"`
	Provider                  ProviderConfig `json:"provider"`
}

// ProviderConfig names the air quality data source shown in the attribution.
type ProviderConfig struct {
	Name        string `json:"name"`
	Attribution string `json:"attribution"`
}

// Enums represents the enum values used by the API.
type Enums struct {
	Basemaps        []string  `json:"basemaps"`
	HighlightStyles []string  `json:"highlightStyles"`
	Layers          []string  `json:"layers"`
	Pollutants      []string  `json:"pollutants"`
	Fields          []string  `json:"fields"`
	AQIBands        []AQIBand `json:"aqiBands"`
}

// Preset is a named coordinate.
type Preset struct {
	Name  string `json:"name"`
	Point Point  `json:"point"`
}

// Presets lists every preset.
type Presets struct {
	Items []Preset `json:"items"`
}
