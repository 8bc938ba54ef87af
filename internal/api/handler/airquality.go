package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/api/response"
	"github.com/cityscope/cityscope/internal/poller"
	"github.com/cityscope/cityscope/internal/render"
	"github.com/cityscope/cityscope/internal/worker"
)

// PollerController is the part of the poller the API drives.
type PollerController interface {
	PollerStatusSource
	Pick(coord airquality.Coordinate) error
	RefreshNow() error
}

// StateSource returns the last presented display state.
type StateSource interface {
	Current() render.State
}

// SurfaceSource returns the markers currently on the surface.
type SurfaceSource interface {
	Snapshot() render.Snapshot
}

// AirQualityConfig holds the dependencies of AirQualityHandler.
type AirQualityConfig struct {
	Poller  PollerController
	State   StateSource
	Surface SurfaceSource

	// Presets defaults to worker.DefaultPresets.
	Presets map[string]worker.Preset
}

// AirQualityHandler handles the air quality panel endpoints.
type AirQualityHandler struct {
	poller  PollerController
	state   StateSource
	surface SurfaceSource
	presets map[string]worker.Preset
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(cfg AirQualityConfig) *AirQualityHandler {
	presets := cfg.Presets
	if presets == nil {
		presets = worker.DefaultPresets()
	}
	return &AirQualityHandler{
		poller:  cfg.Poller,
		state:   cfg.State,
		surface: cfg.Surface,
		presets: presets,
	}
}

// GetDisplay handles GET /v1/air-quality/display - current outputs and marker.
func (h *AirQualityHandler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	state := h.state.Current()

	display := models.Display{
		Status:     string(state.Status),
		Coordinate: toPoint(state.Coordinate),
		Outputs:    make([]models.TextOutput, 0, len(render.Fields())),
	}
	for _, f := range render.Fields() {
		display.Outputs = append(display.Outputs, models.TextOutput{Field: string(f), Text: state.Text(f)})
	}
	if !state.UpdatedAt.IsZero() {
		display.UpdatedAt = models.TimestampPtr(&state.UpdatedAt)
	}

	// The surface holds at most one marker; report the newest if a
	// concurrent replace is mid-flight.
	if markers := h.surface.Snapshot().Markers; len(markers) > 0 {
		m := markers[len(markers)-1]
		display.Marker = &models.Marker{
			ID:       m.ID,
			Position: toPoint(m.Marker.Position),
			Color:    m.Marker.Color,
			Size:     m.Marker.Size,
			Label:    m.Marker.Label,
			Category: string(m.Marker.Category),
			PlacedAt: models.Timestamp(m.PlacedAt),
		}
	}

	response.JSON(w, r, http.StatusOK, display)
}

// GetStatus handles GET /v1/air-quality/status - poller status.
func (h *AirQualityHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toPollerStatus(h.poller.Status()))
}

// SetCoordinate handles PUT /v1/air-quality/coordinate - select a new
// coordinate and fetch it immediately.
func (h *AirQualityHandler) SetCoordinate(w http.ResponseWriter, r *http.Request) {
	var input models.CoordinateRequest
	if !response.Decode(w, r, &input) {
		return
	}

	coord, fieldErrs := h.resolveCoordinate(input)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid coordinate", fieldErrs)
		return
	}

	if err := h.poller.Pick(coord); err != nil {
		switch {
		case errors.Is(err, poller.ErrNotRunning):
			response.ServiceUnavailable(w, r, "poller not running")
		case errors.Is(err, airquality.ErrInvalidCoordinate):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			response.InternalError(w, r, "failed to select coordinate")
		}
		return
	}

	response.Accepted(w, r, "/v1/air-quality/display", toPollerStatus(h.poller.Status()))
}

// Refresh handles POST /v1/air-quality/refresh - fetch now without waiting
// for the next tick.
func (h *AirQualityHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.poller.RefreshNow(); err != nil {
		if errors.Is(err, poller.ErrNotRunning) {
			response.ServiceUnavailable(w, r, "poller not running")
			return
		}
		response.InternalError(w, r, "failed to refresh")
		return
	}
	response.Accepted(w, r, "/v1/air-quality/display", nil)
}

// Classify handles GET /v1/air-quality/classify?aqi= - marker color and size for a value.
func (h *AirQualityHandler) Classify(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("aqi")
	if raw == "" {
		response.BadRequest(w, r, "aqi is required", []models.FieldError{
			models.Required("aqi"),
		})
		return
	}

	aqi, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(aqi) || math.IsInf(aqi, 0) {
		response.BadRequest(w, r, "aqi must be a number", []models.FieldError{
			{Field: "aqi", Message: "must be a finite number", Code: models.CodeInvalidNumber},
		})
		return
	}

	level := airquality.ClassifyAQI(aqi)
	response.JSON(w, r, http.StatusOK, models.Classification{
		AQI:        aqi,
		Category:   string(level.Category),
		Color:      level.Color,
		MarkerSize: level.MarkerSize,
	})
}

func (h *AirQualityHandler) resolveCoordinate(input models.CoordinateRequest) (airquality.Coordinate, []models.FieldError) {
	if input.Preset != "" {
		p, ok := worker.LookupPreset(h.presets, input.Preset)
		if !ok {
			return airquality.Coordinate{}, []models.FieldError{
				{Field: "preset", Message: "unknown preset", Code: models.CodeUnknownPreset},
			}
		}
		return p.Coordinate, nil
	}

	var errs []models.FieldError
	if input.Lat == nil {
		errs = append(errs, models.Required("lat"))
	} else if *input.Lat < -90 || *input.Lat > 90 {
		errs = append(errs, models.OutOfRange("lat", "must be between -90 and 90"))
	}
	if input.Lon == nil {
		errs = append(errs, models.Required("lon"))
	} else if *input.Lon < -180 || *input.Lon > 180 {
		errs = append(errs, models.OutOfRange("lon", "must be between -180 and 180"))
	}
	if len(errs) > 0 {
		return airquality.Coordinate{}, errs
	}
	return airquality.Coordinate{Lat: *input.Lat, Lon: *input.Lon}, nil
}

func toPoint(c airquality.Coordinate) models.Point {
	return models.Point{Lat: c.Lat, Lon: c.Lon}
}

func toPollerStatus(s poller.Status) models.PollerStatus {
	out := models.PollerStatus{
		Running:         s.Running,
		Coordinate:      toPoint(s.Coordinate),
		IntervalSeconds: s.Interval.Seconds(),
		Generation:      s.Generation,
		Fetches:         s.Fetches,
		Successes:       s.Successes,
		Failures:        s.Failures,
		Discarded:       s.Discarded,
		LastSuccessAt:   models.TimestampPtr(s.LastSuccessAt),
		LastFailureAt:   models.TimestampPtr(s.LastFailureAt),
	}
	if s.LastError != "" {
		out.LastError = strPtr(s.LastError)
	}
	if s.LastErrorKind != "" {
		out.LastErrorKind = strPtr(s.LastErrorKind)
	}
	return out
}
