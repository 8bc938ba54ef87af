package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/api/response"
	"github.com/cityscope/cityscope/internal/scene"
)

// SceneService is the viewer state store.
type SceneService interface {
	GetView(ctx context.Context) *scene.View
	FlyTo(ctx context.Context, camera scene.Camera) (*scene.View, error)
	SetBasemap(ctx context.Context, name string) (*scene.View, error)
	SetHighlightStyle(ctx context.Context, name string) (*scene.View, error)
	SetLayer(ctx context.Context, name string, enabled bool) (*scene.View, error)
	Reset(ctx context.Context) (*scene.View, error)
}

// SceneHandler handles viewer state endpoints.
type SceneHandler struct {
	service SceneService
}

// NewSceneHandler creates a new SceneHandler.
func NewSceneHandler(service SceneService) *SceneHandler {
	return &SceneHandler{service: service}
}

// GetView handles GET /v1/scene.
func (h *SceneHandler) GetView(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toSceneView(h.service.GetView(r.Context())))
}

// FlyTo handles PUT /v1/scene/camera.
func (h *SceneHandler) FlyTo(w http.ResponseWriter, r *http.Request) {
	var input models.Camera
	if !response.Decode(w, r, &input) {
		return
	}

	view, err := h.service.FlyTo(r.Context(), scene.Camera{
		Destination: airquality.Coordinate{Lat: input.Destination.Lat, Lon: input.Destination.Lon},
		Height:      input.Height,
		Heading:     input.Heading,
		Pitch:       input.Pitch,
	})
	h.respond(w, r, view, err)
}

// SetBasemap handles PUT /v1/scene/basemap.
func (h *SceneHandler) SetBasemap(w http.ResponseWriter, r *http.Request) {
	var input models.BasemapRequest
	if !response.Decode(w, r, &input) {
		return
	}

	view, err := h.service.SetBasemap(r.Context(), input.Basemap)
	h.respond(w, r, view, err)
}

// SetHighlightStyle handles PUT /v1/scene/highlight-style.
func (h *SceneHandler) SetHighlightStyle(w http.ResponseWriter, r *http.Request) {
	var input models.HighlightStyleRequest
	if !response.Decode(w, r, &input) {
		return
	}

	view, err := h.service.SetHighlightStyle(r.Context(), input.Style)
	h.respond(w, r, view, err)
}

// SetLayer handles PUT /v1/scene/layers/{layer}.
func (h *SceneHandler) SetLayer(w http.ResponseWriter, r *http.Request) {
	var input models.LayerRequest
	if !response.Decode(w, r, &input) {
		return
	}
	if input.Enabled == nil {
		response.BadRequest(w, r, "enabled is required", []models.FieldError{
			models.Required("enabled"),
		})
		return
	}

	view, err := h.service.SetLayer(r.Context(), chi.URLParam(r, "layer"), *input.Enabled)
	h.respond(w, r, view, err)
}

// Reset handles POST /v1/scene/reset.
func (h *SceneHandler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Reset(r.Context())
	h.respond(w, r, view, err)
}

func (h *SceneHandler) respond(w http.ResponseWriter, r *http.Request, view *scene.View, err error) {
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, toSceneView(view))
	case errors.Is(err, scene.ErrLayerUnavailable):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, scene.ErrInvalidCamera),
		errors.Is(err, scene.ErrInvalidBasemap),
		errors.Is(err, scene.ErrInvalidHighlightStyle):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, scene.ErrInvalidLayer):
		response.NotFound(w, r, err.Error())
	default:
		response.InternalError(w, r, "failed to update scene")
	}
}

func toSceneView(v *scene.View) models.SceneView {
	layers := make(map[string]bool, len(v.Layers))
	for l, on := range v.Layers {
		layers[string(l)] = on
	}

	out := models.SceneView{
		Camera: models.Camera{
			Destination: toPoint(v.Camera.Destination),
			Height:      v.Camera.Height,
			Heading:     v.Camera.Heading,
			Pitch:       v.Camera.Pitch,
		},
		Basemap:        string(v.Basemap),
		HighlightStyle: string(v.HighlightStyle),
		Layers:         layers,
	}
	if !v.UpdatedAt.IsZero() {
		out.UpdatedAt = models.TimestampPtr(&v.UpdatedAt)
	}
	return out
}
