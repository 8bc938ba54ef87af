package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/airquality/waqi"
	"github.com/cityscope/cityscope/internal/provider/resilience"
	"github.com/cityscope/cityscope/internal/render"
	"github.com/cityscope/cityscope/internal/worker"
)

func newFetchCmd() *cobra.Command {
	var (
		lat, lon float64
		preset   string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and print one air quality reading",
		Long: `fetch performs a single request for a coordinate and prints the display
texts and marker the viewer would show. Without flags it uses app.center.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateProvider(); err != nil {
				return err
			}

			coord := cfg.App.Center
			switch {
			case preset != "":
				p, ok := worker.LookupPreset(worker.DefaultPresets(), preset)
				if !ok {
					return fmt.Errorf("unknown preset %q", preset)
				}
				coord = p.Coordinate
			case cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon"):
				if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
					return fmt.Errorf("--lat and --lon must be given together")
				}
				coord = airquality.Coordinate{Lat: lat, Lon: lon}
			}
			if err := coord.Validate(); err != nil {
				return err
			}

			client := waqi.NewClient(waqi.ClientConfig{
				Token:    cfg.Tokens.AirQualityToken,
				BaseURL:  cfg.Provider.BaseURL,
				Timeout:  cfg.Provider.Timeout,
				Registry: resilience.NewRegistry(),
				Logger:   newLogger(cfg.App.Env).Level(zerolog.WarnLevel),
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Poller.RequestTimeout)
			defer cancel()

			reading, fetchErr := client.FetchOnce(ctx, coord)
			state := render.Render(render.Initial(), coord, reading, fetchErr, render.Policy{})
			printState(cmd.OutOrStdout(), state)

			if fetchErr != nil {
				return fmt.Errorf("fetch failed (%s): %w", airquality.ErrorKind(fetchErr), fetchErr)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in decimal degrees")
	cmd.Flags().StringVar(&preset, "preset", "", "named location, e.g. amsterdam")
	cmd.MarkFlagsMutuallyExclusive("preset", "lat")
	cmd.MarkFlagsMutuallyExclusive("preset", "lon")

	return cmd
}

func printState(w io.Writer, s render.State) {
	fmt.Fprintf(w, "coordinate: %s\n", s.Coordinate)
	for _, f := range render.Fields() {
		fmt.Fprintln(w, s.Text(f))
	}
	if s.Marker != nil {
		fmt.Fprintf(w, "marker: %s size %g (%s)\n", s.Marker.Color, s.Marker.Size, s.Marker.Category)
	}
}
