package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/render"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render frames of the flock to PNG files",
		Long: `Run the flock as fast as possible and render frames to PNG.

Examples:
  flock render --ticks 300 --out frames        # only the last frame
  flock render --ticks 300 --every 10 --out f  # every 10th tick`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			defer func() { _ = logger.Sync() }()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := renderOptions{}
			opts.ticks, _ = cmd.Flags().GetInt("ticks")
			opts.every, _ = cmd.Flags().GetInt("every")
			opts.out, _ = cmd.Flags().GetString("out")
			opts.png.Width, _ = cmd.Flags().GetInt("width")
			opts.png.Height, _ = cmd.Flags().GetInt("height")
			opts.png.BoidSize, _ = cmd.Flags().GetFloat64("boid-size")
			opts.png.DrawWalls = true

			files, err := renderFrames(cmd.Context(), logger, cfg, opts)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Int("ticks", 300, "Number of ticks to simulate")
	cmd.Flags().Int("every", 0, "Render every n-th tick (0 = only the last one)")
	cmd.Flags().String("out", ".", "Output directory")
	cmd.Flags().Int("width", 800, "Image width in pixels")
	cmd.Flags().Int("height", 800, "Image height in pixels")
	cmd.Flags().Float64("boid-size", 5, "Boid arrow size in pixels")

	return cmd
}

type renderOptions struct {
	ticks int
	every int
	out   string
	png   render.Options
}

// renderFrames advances a fresh world opts.ticks times without pacing and
// returns the written file names.
func renderFrames(ctx context.Context, logger *zap.Logger, cfg *simulation.Config, opts renderOptions) ([]string, error) {
	if opts.ticks < 0 {
		return nil, fmt.Errorf("ticks must not be negative, got %d", opts.ticks)
	}
	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	w, err := world.New(ctx, cfg, world.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Close(closeCtx)
	}()

	var files []string
	write := func(f *world.Frame) error {
		name := filepath.Join(opts.out, fmt.Sprintf("frame_%05d.png", f.Tick))
		out, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		if err := render.RenderPNG(out, f, opts.png); err != nil {
			_ = out.Close()
			return fmt.Errorf("failed to render %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			return err
		}
		files = append(files, name)
		return nil
	}

	for n := 1; n <= opts.ticks; n++ {
		f, err := w.Advance(ctx)
		if err != nil {
			return files, err
		}
		if opts.every > 0 && n%opts.every == 0 {
			if err := write(f); err != nil {
				return files, err
			}
		}
	}
	if opts.every <= 0 || opts.ticks%opts.every != 0 {
		if err := write(w.Latest()); err != nil {
			return files, err
		}
	}
	logger.Info("frames rendered", zap.Int("count", len(files)), zap.String("dir", opts.out))
	return files, nil
}
