// Package api provides the HTTP API for CityScope.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cityscope/cityscope/internal/api/handler"
	"github.com/cityscope/cityscope/internal/api/middleware"
	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/worker"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// WriteRateLimit is the per-IP budget per minute for mutating routes
	// (default: middleware.WriteRateLimit).
	WriteRateLimit int

	Poller    handler.PollerController
	State     handler.StateSource
	Surface   handler.SurfaceSource
	Scene     handler.SceneService
	Providers handler.ProviderHealthSource
	Database  handler.Pinger
	Presets   map[string]worker.Preset

	ClientConfig models.ClientConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cityscope"
	}

	writeLimit := middleware.WriteRateLimit
	if cfg.WriteRateLimit > 0 {
		writeLimit = middleware.PerMinute(cfg.WriteRateLimit)
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Poller:    cfg.Poller,
		Providers: cfg.Providers,
		Database:  cfg.Database,
	})
	airQualityHandler := handler.NewAirQualityHandler(handler.AirQualityConfig{
		Poller:  cfg.Poller,
		State:   cfg.State,
		Surface: cfg.Surface,
		Presets: cfg.Presets,
	})
	sceneHandler := handler.NewSceneHandler(cfg.Scene)
	metadataHandler := handler.NewMetadataHandler(cfg.Presets)
	clientConfigHandler := handler.NewClientConfigHandler(cfg.ClientConfig)

	readRateLimit := middleware.RateLimitByIP(middleware.ReadRateLimit)
	writeRateLimit := middleware.RateLimitByIP(writeLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/air-quality", func(r chi.Router) {
			r.With(readRateLimit).Get("/display", airQualityHandler.GetDisplay)
			r.With(readRateLimit).Get("/status", airQualityHandler.GetStatus)
			r.With(readRateLimit).Get("/classify", airQualityHandler.Classify)

			r.Group(func(r chi.Router) {
				r.Use(writeRateLimit)
				r.Use(middleware.RequireJSON)
				r.Put("/coordinate", airQualityHandler.SetCoordinate)
				r.Post("/refresh", airQualityHandler.Refresh)
			})
		})

		r.Route("/scene", func(r chi.Router) {
			r.With(readRateLimit).Get("/", sceneHandler.GetView)

			r.Group(func(r chi.Router) {
				r.Use(writeRateLimit)
				r.Use(middleware.RequireJSON)
				r.Put("/camera", sceneHandler.FlyTo)
				r.Put("/basemap", sceneHandler.SetBasemap)
				r.Put("/highlight-style", sceneHandler.SetHighlightStyle)
				r.Put("/layers/{layer}", sceneHandler.SetLayer)
				r.Post("/reset", sceneHandler.Reset)
			})
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Use(readRateLimit)
			r.Get("/enums", metadataHandler.GetEnums)
			r.Get("/presets", metadataHandler.ListPresets)
		})

		r.With(readRateLimit).Get("/config/client", clientConfigHandler.GetClientConfig)
	})

	return r
}
