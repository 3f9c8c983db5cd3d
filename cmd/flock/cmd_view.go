package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/viewer"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Open an interactive window on the flock",
		Long: `Open a window showing the flock from above, one tick per frame.

The side panel tunes weights, radii, speeds and the wall policy live.
Esc closes the window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			defer func() { _ = logger.Sync() }()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			size, _ := cmd.Flags().GetFloat64("boid-size")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := world.New(ctx, cfg, world.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to create world: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := w.Close(closeCtx); err != nil {
					logger.Warn("closing world", zap.Error(err))
				}
			}()

			return viewer.Run(ctx, w, viewer.Options{
				Width:    width,
				Height:   height,
				BoidSize: size,
				Logger:   logger,
			})
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Int("width", 1024, "Window width in pixels")
	cmd.Flags().Int("height", 768, "Window height in pixels")
	cmd.Flags().Float64("boid-size", 5, "Boid arrow size in pixels")

	return cmd
}
