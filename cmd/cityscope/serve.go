package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cityscope/cityscope/internal/airquality/waqi"
	"github.com/cityscope/cityscope/internal/api"
	"github.com/cityscope/cityscope/internal/api/handler"
	"github.com/cityscope/cityscope/internal/api/middleware"
	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/config"
	"github.com/cityscope/cityscope/internal/database"
	"github.com/cityscope/cityscope/internal/poller"
	"github.com/cityscope/cityscope/internal/provider/resilience"
	"github.com/cityscope/cityscope/internal/render"
	"github.com/cityscope/cityscope/internal/scene"
	"github.com/cityscope/cityscope/internal/sink"
	"github.com/cityscope/cityscope/internal/telemetry"
	"github.com/cityscope/cityscope/internal/worker"
)

const providerAttribution = "World Air Quality Index Project"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, newLogger(cfg.App.Env))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting CityScope")

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing http metrics: %w", err)
	}
	pollMetrics, err := poller.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing poller metrics: %w", err)
	}

	registry := resilience.NewRegistry()
	client := waqi.NewClient(waqi.ClientConfig{
		Token:    cfg.Tokens.AirQualityToken,
		BaseURL:  cfg.Provider.BaseURL,
		Timeout:  cfg.Provider.Timeout,
		Registry: registry,
		Logger:   log,
	})

	// Scene persistence
	var (
		repo scene.Repository = scene.NewInMemoryRepository()
		pool *pgxpool.Pool
	)
	if cfg.Database.Enabled {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		repo = scene.NewPostgresRepository(pool)

		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	sceneService := scene.NewService(scene.ServiceConfig{
		Repository:                repo,
		Logger:                    log,
		Center:                    cfg.App.Center,
		ProposedBuildingAvailable: cfg.ProposedBuildingAvailable(),
	})

	publishers, err := newPublishers(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := publishers.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close reading publishers")
		}
	}()

	surface := render.NewMemorySurface()
	presenter := render.NewPresenter(surface)

	pollerCfg := poller.Config{
		Fetcher:        client,
		Presenter:      presenter,
		Policy:         render.Policy{KeepMarkerOnFailure: cfg.Poller.KeepMarkerOnFailure},
		Metrics:        pollMetrics,
		Logger:         log,
		RequestTimeout: cfg.Poller.RequestTimeout,
	}
	if len(publishers) > 0 {
		pollerCfg.Sink = publishers
	}
	aqPoller := poller.New(pollerCfg)

	presets := worker.DefaultPresets()

	if cfg.Commands.Enabled {
		commands := worker.NewCommandHandler(worker.CommandHandlerConfig{
			Poller:  aqPoller,
			Scene:   sceneService,
			Presets: presets,
			Logger:  log,
		})
		subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Commands.ProjectID,
			SubscriptionName: cfg.Commands.Subscription,
			Commands:         commands,
			Logger:           log,
		})
		if err != nil {
			return fmt.Errorf("creating command subscriber: %w", err)
		}
		defer func() {
			if closeErr := subscriber.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("failed to close command subscriber")
			}
		}()

		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("command subscriber stopped")
			}
		}()
	}

	if err := aqPoller.Start(ctx, cfg.App.Center, cfg.Poller.Interval); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	defer aqPoller.Stop()

	routerCfg := api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		RequireTLS:     cfg.App.RequireTLS,
		WriteRateLimit: cfg.App.RateLimit,
		Poller:         aqPoller,
		State:          presenter,
		Surface:        surface,
		Scene:          sceneService,
		Providers:      registry,
		Presets:        presets,
		ClientConfig:   clientConfig(cfg),
	}
	if pool != nil {
		routerCfg.Database = pool
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

// newPublishers opens the enabled reading sinks. On error the sinks already
// opened are closed.
func newPublishers(ctx context.Context, cfg *config.Config, log zerolog.Logger) (sink.Fanout, error) {
	var publishers sink.Fanout

	if cfg.Sink.PubSub.Enabled {
		p, err := sink.NewPubSubPublisher(ctx, sink.PubSubConfig{
			ProjectID: cfg.Sink.PubSub.ProjectID,
			Topic:     cfg.Sink.PubSub.Topic,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating pubsub publisher: %w", err)
		}
		publishers = append(publishers, p)
		log.Info().Str("topic", cfg.Sink.PubSub.Topic).Msg("publishing readings to Pub/Sub")
	}

	if cfg.Sink.MQTT.Enabled {
		p, err := sink.NewMQTTPublisher(sink.MQTTConfig{
			Broker:   cfg.Sink.MQTT.Broker,
			ClientID: cfg.Sink.MQTT.ClientID,
			Topic:    cfg.Sink.MQTT.Topic,
			QoS:      byte(cfg.Sink.MQTT.QoS),
			Retained: cfg.Sink.MQTT.Retained,
			Timeout:  cfg.Sink.MQTT.Timeout,
			Logger:   log,
		})
		if err != nil {
			_ = publishers.Close()
			return nil, fmt.Errorf("creating mqtt publisher: %w", err)
		}
		publishers = append(publishers, p)
		log.Info().Str("broker", cfg.Sink.MQTT.Broker).Msg("publishing readings to MQTT")
	}

	return publishers, nil
}

func clientConfig(cfg *config.Config) models.ClientConfig {
	cc := models.ClientConfig{
		TilesetAccessToken:        cfg.Tokens.TilesetAccessToken,
		PhotorealisticAssetID:     cfg.Tokens.PhotorealisticAssetID,
		ProposedBuildingAvailable: cfg.ProposedBuildingAvailable(),
		Center:                    models.Point{Lat: cfg.App.Center.Lat, Lon: cfg.App.Center.Lon},
		PollIntervalSeconds:       cfg.Poller.Interval.Seconds(),
		Provider: models.ProviderConfig{
			Name:        waqi.ProviderName,
			Attribution: providerAttribution,
		},
	}
	if cfg.ProposedBuildingAvailable() {
		id := cfg.Tokens.ProposedBuildingAssetID
		cc.ProposedBuildingAssetID = &id
	}
	return cc
}

var (
	_ handler.PollerController     = (*poller.Poller)(nil)
	_ handler.StateSource          = (*render.Presenter)(nil)
	_ handler.SurfaceSource        = (*render.MemorySurface)(nil)
	_ handler.SceneService         = (*scene.Service)(nil)
	_ handler.ProviderHealthSource = (*resilience.Registry)(nil)
	_ handler.Pinger               = (*pgxpool.Pool)(nil)
)
