// Package handler provides HTTP handlers for the CityScope API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/api/response"
	"github.com/cityscope/cityscope/internal/poller"
	"github.com/cityscope/cityscope/internal/provider/resilience"
)

// PollerStatusSource reports the poller state.
type PollerStatusSource interface {
	Status() poller.Status
}

// ProviderHealthSource reports upstream provider health.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// Pinger checks a backing store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig holds the dependencies of OpsHandler. Providers and Database are optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Poller    PollerStatusSource
	Providers ProviderHealthSource
	Database  Pinger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	poller    PollerStatusSource
	providers ProviderHealthSource
	database  Pinger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		poller:    cfg.Poller,
		providers: cfg.Providers,
		database:  cfg.Database,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// poller is running.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil || !h.poller.Status().Running {
		response.ServiceUnavailable(w, r, "poller not running")
		return
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.subsystems(r.Context()),
		Providers:  h.providerStatuses(),
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worst(status.Status, p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	var out []models.SubsystemStatus

	if h.poller != nil {
		ps := h.poller.Status()
		s := models.SubsystemStatus{Name: "poller", Status: models.HealthStatusOK}
		switch {
		case !ps.Running:
			s.Status = models.HealthStatusFail
			s.Detail = strPtr("not running")
		case ps.LastErrorKind != "" && (ps.LastSuccessAt == nil || ps.LastFailureAt.After(*ps.LastSuccessAt)):
			s.Status = models.HealthStatusDegraded
			s.Detail = strPtr("last fetch failed: " + ps.LastErrorKind)
		}
		out = append(out, s)
	}

	if h.database != nil {
		s := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.database.Ping(pingCtx); err != nil {
			s.Status = models.HealthStatusFail
			s.Detail = strPtr(err.Error())
		}
		out = append(out, s)
	}

	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	out := []models.ProviderStatus{}
	if h.providers == nil {
		return out
	}

	for _, ph := range h.providers.GetAllHealth() {
		p := models.ProviderStatus{
			Provider:      ph.Name,
			Status:        providerHealthStatus(ph.Status()),
			CircuitState:  ph.CircuitState.String(),
			Failures:      ph.ConsecutiveFailures,
			LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			p.Message = strPtr(ph.LastError)
		}
		out = append(out, p)
	}
	return out
}

func providerHealthStatus(s string) models.HealthStatus {
	switch s {
	case resilience.StatusOK:
		return models.HealthStatusOK
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

// worst returns the more severe of two statuses.
func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func strPtr(s string) *string {
	return &s
}
