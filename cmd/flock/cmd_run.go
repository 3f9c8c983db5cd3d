package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/server"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/telemetry"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the flock headless, optionally serving it over HTTP",
		Long: `Run the flock at the configured tick rate without a window.

With --listen the flock is served over HTTP: /healthz, /api/snapshot,
/api/config (GET and PUT for hot reload), /api/schema, /metrics and the
/ws websocket frame stream. SIGHUP reloads the --config file.

Examples:
  flock run --ticks 600                      # 10 seconds at 60 ticks/s
  flock run -c flock.yaml --listen :8080     # serve until interrupted
  flock run --mode batch --executor actor    # goakt lanes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			defer func() { _ = logger.Sync() }()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ticks, _ := cmd.Flags().GetInt("ticks")
			listen, _ := cmd.Flags().GetString("listen")
			snapshot, _ := cmd.Flags().GetString("snapshot")
			configPath, _ := cmd.Flags().GetString("config")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runFlock(ctx, logger, cfg, runOptions{
				ticks:      ticks,
				listen:     listen,
				snapshot:   snapshot,
				configPath: configPath,
			})
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Int("ticks", 0, "Stop after this many ticks (0 = until interrupted)")
	cmd.Flags().String("listen", "", "Serve HTTP on this address, e.g. :8080")
	cmd.Flags().String("snapshot", "", "Write the last frame as JSON to this file on exit")

	return cmd
}

type runOptions struct {
	ticks      int
	listen     string
	snapshot   string
	configPath string
}

func runFlock(ctx context.Context, logger *zap.Logger, cfg *simulation.Config, opts runOptions) error {
	metrics := telemetry.NewMetrics()
	w, err := world.New(ctx, cfg,
		world.WithLogger(logger),
		world.WithObserver(metrics),
		world.WithReloadHook(func(simulation.Config) { metrics.ConfigReloaded() }),
	)
	if err != nil {
		return fmt.Errorf("failed to create world: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := w.Close(closeCtx); err != nil {
			logger.Warn("closing world", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	var srv *server.Server
	if opts.listen != "" {
		srv = server.New(opts.listen, server.RouterConfig{
			World:     w,
			Metrics:   metrics.Handler(),
			Logger:    logger,
			OnClients: metrics.SetWebsocketClients,
		})
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.configPath != "" {
		g.Go(func() error {
			reloadOnHangup(gctx, logger, w, opts.configPath)
			return nil
		})
	}

	g.Go(func() error {
		err := w.Run(gctx, opts.ticks)
		if srv == nil {
			// nothing left to serve
			return errStop(err)
		}
		return err
	})

	err = g.Wait()
	if errors.Is(err, errStopped) {
		err = nil
	}

	if f := w.Latest(); f != nil {
		logger.Info("flock stopped", zap.Uint64("tick", f.Tick), zap.Int("agents", len(f.Agents)))
		if opts.snapshot != "" {
			if werr := writeSnapshot(opts.snapshot, f); werr != nil {
				return werr
			}
		}
	}
	return err
}

// errStopped ends the errgroup once a headless run is over.
var errStopped = errors.New("run finished")

func errStop(err error) error {
	if err != nil {
		return err
	}
	return errStopped
}

// reloadOnHangup re-reads path on every SIGHUP and applies it to w.
func reloadOnHangup(ctx context.Context, logger *zap.Logger, w *world.World, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := simulation.LoadConfig(path)
			if err != nil {
				logger.Error("config reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			err = w.ModifyConfig(ctx, func(cur simulation.Config) (*simulation.Config, error) {
				// the population and seed of a run never change
				next.Population = cur.Population
				next.Seed = cur.Seed
				return next, nil
			})
			if err != nil {
				logger.Error("config reload rejected", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

func writeSnapshot(path string, f *world.Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return out.Close()
}
