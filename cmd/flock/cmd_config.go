package main

import (
	"encoding/json"
	"fmt"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration a run would use: the defaults, overlaid with
--config and the override flags.

Examples:
  flock config > flock.yaml
  flock config -c flock.yaml --population 500 --format json
  flock config --schema                     # the JSON schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if schema, _ := cmd.Flags().GetBool("schema"); schema {
				_, err := fmt.Fprintln(out, simulation.Schema())
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			switch simulation.Format(format) {
			case simulation.FormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			case simulation.FormatYAML:
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q (must be json or yaml)", format)
			}
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().String("format", "yaml", "Output format: json or yaml")
	cmd.Flags().Bool("schema", false, "Print the JSON schema instead")

	return cmd
}
