package main

import (
	"fmt"
	"os"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/logging"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flock",
		Short: "Boids flocking simulation",
		Long: `flock simulates a flock of boids steered by separation, alignment
and cohesion inside a 2D or 3D box.

It can run headless and serve the flock over HTTP, open an interactive
window, or render frames to PNG.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON lines")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newViewCmd(),
		newRenderCmd(),
		newValidateCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// newLogger builds the logger selected by the global flags. Logs go to stderr
// so stdout stays clean for command output.
func newLogger(cmd *cobra.Command) *zap.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	if asJSON {
		return logging.NewJSONLogger(level, cmd.ErrOrStderr())
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}

// loadConfig reads --config, or the defaults when it is empty, then applies
// the simulation flags the command defines and the user set.
func loadConfig(cmd *cobra.Command) (*simulation.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg := simulation.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = simulation.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("population") {
		cfg.Population, _ = flags.GetInt("population")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		if err := cfg.ExecutionMode.UnmarshalText([]byte(mode)); err != nil {
			return nil, err
		}
	}
	if flags.Changed("executor") {
		exec, _ := flags.GetString("executor")
		if err := cfg.Executor.UnmarshalText([]byte(exec)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// addSimulationFlags defines the overrides read by loadConfig.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("population", 0, "Override the number of boids")
	cmd.Flags().Uint64("seed", 0, "Override the random seed")
	cmd.Flags().String("mode", "", "Override the execution mode: sequential or batch")
	cmd.Flags().String("executor", "", "Override the batch executor: pool, actor or inline")
}
