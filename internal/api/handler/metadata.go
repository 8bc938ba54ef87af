package handler

import (
	"net/http"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/api/response"
	"github.com/cityscope/cityscope/internal/render"
	"github.com/cityscope/cityscope/internal/scene"
	"github.com/cityscope/cityscope/internal/worker"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	presets map[string]worker.Preset
}

// NewMetadataHandler creates a new MetadataHandler. A nil presets map uses
// worker.DefaultPresets.
func NewMetadataHandler(presets map[string]worker.Preset) *MetadataHandler {
	if presets == nil {
		presets = worker.DefaultPresets()
	}
	return &MetadataHandler{presets: presets}
}

// GetEnums handles GET /v1/metadata/enums - get enum values used by the API.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		Basemaps:        stringsOf(scene.Basemaps),
		HighlightStyles: stringsOf(scene.HighlightStyles),
		Layers:          stringsOf(scene.Layers),
		Pollutants:      stringsOf(airquality.Pollutants),
		Fields:          stringsOf(render.Fields()),
	}

	for _, b := range airquality.Levels() {
		band := models.AQIBand{
			Category:   string(b.Level.Category),
			Color:      b.Level.Color,
			MarkerSize: b.Level.MarkerSize,
		}
		if !b.Open {
			upper := b.Max
			band.Max = &upper
		}
		enums.AQIBands = append(enums.AQIBands, band)
	}

	response.JSON(w, r, http.StatusOK, enums)
}

// ListPresets handles GET /v1/metadata/presets.
func (h *MetadataHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	out := models.Presets{Items: make([]models.Preset, 0, len(h.presets))}
	for _, name := range worker.PresetNames(h.presets) {
		p := h.presets[name]
		out.Items = append(out.Items, models.Preset{Name: p.Name, Point: toPoint(p.Coordinate)})
	}
	response.JSON(w, r, http.StatusOK, out)
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
