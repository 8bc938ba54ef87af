// Package worker processes remote viewer commands delivered over Pub/Sub.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/scene"
)

// Command types.
const (
	CommandSetCoordinate = "set_coordinate"
	CommandRefresh       = "refresh"
	CommandResetView     = "reset_view"
)

// ErrInvalidCommand is returned for messages that can never succeed.
var ErrInvalidCommand = errors.New("invalid command")

// Poller is the part of the poller that commands drive.
type Poller interface {
	Pick(coord airquality.Coordinate) error
	RefreshNow() error
}

// ViewResetter restores the default scene view.
type ViewResetter interface {
	Reset(ctx context.Context) (*scene.View, error)
}

// CommandMessage is the JSON payload of a command. set_coordinate takes
// either lat/lon or a preset name.
type CommandMessage struct {
	Command string   `json:"command"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Preset  string   `json:"preset,omitempty"`
}

// CommandHandlerConfig holds configuration for the command handler.
type CommandHandlerConfig struct {
	Poller Poller

	// Scene is optional; without it reset_view is rejected.
	Scene ViewResetter

	// Presets defaults to DefaultPresets.
	Presets map[string]Preset

	Logger zerolog.Logger
}

// CommandHandler executes commands against the poller and scene.
type CommandHandler struct {
	poller  Poller
	scene   ViewResetter
	presets map[string]Preset
	logger  zerolog.Logger
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(cfg CommandHandlerConfig) *CommandHandler {
	presets := cfg.Presets
	if presets == nil {
		presets = DefaultPresets()
	}

	return &CommandHandler{
		poller:  cfg.Poller,
		scene:   cfg.Scene,
		presets: presets,
		logger:  cfg.Logger,
	}
}

// Handle decodes and executes one command payload.
func (h *CommandHandler) Handle(ctx context.Context, data []byte) (string, error) {
	var msg CommandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	switch msg.Command {
	case CommandSetCoordinate:
		coord, err := h.coordinate(msg)
		if err != nil {
			return msg.Command, err
		}
		return msg.Command, h.poller.Pick(coord)

	case CommandRefresh:
		return msg.Command, h.poller.RefreshNow()

	case CommandResetView:
		if h.scene == nil {
			return msg.Command, fmt.Errorf("%w: scene state not configured", ErrInvalidCommand)
		}
		_, err := h.scene.Reset(ctx)
		return msg.Command, err

	default:
		return msg.Command, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, msg.Command)
	}
}

// Process runs one command and reports whether the message should be acked.
// Invalid commands are acked so they are not redelivered.
func (h *CommandHandler) Process(ctx context.Context, messageID string, data []byte) bool {
	startTime := time.Now()
	logger := h.logger.With().Str("message_id", messageID).Logger()

	command, err := h.Handle(ctx, data)
	if err != nil {
		if errors.Is(err, ErrInvalidCommand) {
			logger.Warn().Err(err).Str("command", command).Msg("dropping invalid command")
			return true
		}
		logger.Error().Err(err).Str("command", command).Msg("command failed")
		return false
	}

	logger.Info().
		Str("command", command).
		Dur("duration", time.Since(startTime)).
		Msg("command completed")
	return true
}

func (h *CommandHandler) coordinate(msg CommandMessage) (airquality.Coordinate, error) {
	if msg.Preset != "" {
		p, ok := LookupPreset(h.presets, msg.Preset)
		if !ok {
			return airquality.Coordinate{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidCommand, msg.Preset)
		}
		return p.Coordinate, nil
	}

	if msg.Lat == nil || msg.Lon == nil {
		return airquality.Coordinate{}, fmt.Errorf("%w: lat and lon are required", ErrInvalidCommand)
	}
	coord := airquality.Coordinate{Lat: *msg.Lat, Lon: *msg.Lon}
	if err := coord.Validate(); err != nil {
		return airquality.Coordinate{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return coord, nil
}
