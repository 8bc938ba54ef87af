// Package config loads service settings from a local YAML file and
// CITYSCOPE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/database"
)

// EnvPrefix is the prefix of environment overrides, e.g. CITYSCOPE_TOKENS_AIR_QUALITY_TOKEN.
const EnvPrefix = "CITYSCOPE"

// ErrMissingSecret is returned when a required token is not configured.
var ErrMissingSecret = errors.New("missing required secret")

// ErrInvalidConfig is returned for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Database  database.Config `mapstructure:"database"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Commands  CommandsConfig  `mapstructure:"commands"`
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`

	// Center is the home coordinate, written as "lat;lon".
	Center airquality.Coordinate `mapstructure:"center"`

	// RateLimit is the per-IP request budget per minute for mutating routes.
	RateLimit int `mapstructure:"rate_limit"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool `mapstructure:"require_tls"`
}

// TokensConfig holds the external secrets.
type TokensConfig struct {
	TilesetAccessToken      string `mapstructure:"tileset_access_token"`
	AirQualityToken         string `mapstructure:"air_quality_token"`
	ProposedBuildingAssetID string `mapstructure:"proposed_building_asset_id"`

	// PhotorealisticAssetID is the 3D tileset asset loaded as the default basemap.
	PhotorealisticAssetID int `mapstructure:"photorealistic_asset_id"`
}

// PollerConfig holds poll loop settings.
type PollerConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	KeepMarkerOnFailure bool          `mapstructure:"keep_marker_on_failure"`
}

// ProviderConfig holds air quality provider settings.
type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
	SampleRatio    float64       `mapstructure:"sample_ratio"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

// SinkConfig holds reading fan-out settings.
type SinkConfig struct {
	PubSub PubSubSinkConfig `mapstructure:"pubsub"`
	MQTT   MQTTSinkConfig   `mapstructure:"mqtt"`
}

// PubSubSinkConfig configures the Pub/Sub reading publisher.
type PubSubSinkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MQTTSinkConfig configures the MQTT reading publisher.
type MQTTSinkConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Broker   string        `mapstructure:"broker"`
	ClientID string        `mapstructure:"client_id"`
	Topic    string        `mapstructure:"topic"`
	QoS      int           `mapstructure:"qos"`
	Retained bool          `mapstructure:"retained"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CommandsConfig configures the remote command subscriber.
type CommandsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription"`
}

// Load reads configuration. With an empty path it looks for cityscope.yaml
// in the working directory and $HOME/.config/cityscope, and proceeds with
// defaults and environment variables if none is found.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cityscope")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cityscope")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			dc.DecodeHook,
			stringToCoordinateHookFunc(),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file.
func setDefaults(v *viper.Viper) {
	db := database.DefaultConfig()

	defaults := map[string]any{
		"app.env":         "development",
		"app.port":        8080,
		"app.center":      airquality.DefaultCoordinate.String(),
		"app.rate_limit":  60,
		"app.require_tls": false,

		"tokens.tileset_access_token":       "",
		"tokens.air_quality_token":          "",
		"tokens.proposed_building_asset_id": "",
		"tokens.photorealistic_asset_id":    2275207,

		"poller.interval":               "5m",
		"poller.request_timeout":        "15s",
		"poller.keep_marker_on_failure": false,

		"provider.base_url": "https://api.waqi.info",
		"provider.timeout":  "10s",

		"telemetry.enabled":         false,
		"telemetry.otlp_endpoint":   "localhost:4317",
		"telemetry.insecure":        true,
		"telemetry.sample_ratio":    1.0,
		"telemetry.metric_interval": "15s",

		"database.enabled":           db.Enabled,
		"database.host":              db.Host,
		"database.port":              db.Port,
		"database.user":              db.User,
		"database.password":          db.Password,
		"database.name":              db.Database,
		"database.ssl_mode":          db.SSLMode,
		"database.max_open_conns":    db.MaxOpenConns,
		"database.max_idle_conns":    db.MaxIdleConns,
		"database.conn_max_lifetime": db.ConnMaxLifetime.String(),

		"sink.pubsub.enabled":    false,
		"sink.pubsub.project_id": "",
		"sink.pubsub.topic":      "air-quality-readings",

		"sink.mqtt.enabled":   false,
		"sink.mqtt.broker":    "tcp://localhost:1883",
		"sink.mqtt.client_id": "cityscope",
		"sink.mqtt.topic":     "cityscope/air-quality",
		"sink.mqtt.qos":       1,
		"sink.mqtt.retained":  true,
		"sink.mqtt.timeout":   "10s",

		"commands.enabled":      false,
		"commands.project_id":   "",
		"commands.subscription": "cityscope-commands",
	}

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// stringToCoordinateHookFunc decodes "lat;lon" strings into coordinates.
func stringToCoordinateHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(airquality.Coordinate{}) {
			return data, nil
		}
		return airquality.ParseCoordinate(data.(string))
	}
}

// Validate reports every missing secret and out-of-range value.
func (c *Config) Validate() error {
	var errs []error

	if c.Tokens.TilesetAccessToken == "" {
		errs = append(errs, fmt.Errorf("%w: tokens.tileset_access_token", ErrMissingSecret))
	}
	if c.Tokens.AirQualityToken == "" {
		errs = append(errs, fmt.Errorf("%w: tokens.air_quality_token", ErrMissingSecret))
	}

	if c.App.Port < 1 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: app.port %d", ErrInvalidConfig, c.App.Port))
	}
	if c.App.RateLimit < 1 {
		errs = append(errs, fmt.Errorf("%w: app.rate_limit must be positive", ErrInvalidConfig))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%w: poller.interval must be positive", ErrInvalidConfig))
	}
	if c.Poller.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: poller.request_timeout must be positive", ErrInvalidConfig))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: telemetry.sample_ratio must be within [0, 1]", ErrInvalidConfig))
	}

	if c.Sink.PubSub.Enabled && (c.Sink.PubSub.ProjectID == "" || c.Sink.PubSub.Topic == "") {
		errs = append(errs, fmt.Errorf("%w: sink.pubsub needs project_id and topic", ErrInvalidConfig))
	}
	if c.Sink.MQTT.Enabled {
		if c.Sink.MQTT.Broker == "" || c.Sink.MQTT.Topic == "" {
			errs = append(errs, fmt.Errorf("%w: sink.mqtt needs broker and topic", ErrInvalidConfig))
		}
		if c.Sink.MQTT.QoS < 0 || c.Sink.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("%w: sink.mqtt.qos %d", ErrInvalidConfig, c.Sink.MQTT.QoS))
		}
	}
	if c.Commands.Enabled && (c.Commands.ProjectID == "" || c.Commands.Subscription == "") {
		errs = append(errs, fmt.Errorf("%w: commands needs project_id and subscription", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// ValidateProvider checks only what a one-shot fetch needs.
func (c *Config) ValidateProvider() error {
	if c.Tokens.AirQualityToken == "" {
		return fmt.Errorf("%w: tokens.air_quality_token", ErrMissingSecret)
	}
	return nil
}

// ProposedBuildingAvailable reports whether a proposed-building asset is configured.
func (c *Config) ProposedBuildingAvailable() bool {
	return c.Tokens.ProposedBuildingAssetID != ""
}
