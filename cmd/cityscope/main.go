// Package main provides the entrypoint for the CityScope service and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cityscope/cityscope/internal/config"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "cityscope"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cityscope",
	Short: "Live air quality for a 3D city viewer",
	Long: `cityscope polls the World Air Quality Index for a chosen coordinate,
classifies the reading and serves the rendered display, marker and shared
scene view over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cityscope.yaml or $HOME/.config/cityscope/cityscope.yaml)")
	rootCmd.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFetchCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	if env == "development" {
		level = zerolog.DebugLevel
	}

	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}
