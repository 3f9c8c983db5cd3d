package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/spf13/cobra"
)

// validationResult is one line of `flock validate --json`.
type validationResult struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check configuration files against the schema and the semantic rules",
		Long: `Check configuration files without running anything.

Each file is validated against the embedded JSON schema (or --schema),
overlaid on the defaults and checked for semantic errors such as
minSpeed greater than maxSpeed.

Examples:
  flock validate flock.yaml other.json
  flock validate -c flock.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			schema, _ := cmd.Flags().GetString("schema")
			if len(args) == 0 {
				if path, _ := cmd.Flags().GetString("config"); path != "" {
					args = []string{path}
				}
			}
			if len(args) == 0 {
				return errors.New("no configuration file given")
			}

			results := make([]validationResult, 0, len(args))
			failed := 0
			for _, path := range args {
				var err error
				if schema != "" {
					_, err = simulation.LoadConfigWithSchema(path, schema)
				} else {
					_, err = simulation.LoadConfig(path)
				}
				r := validationResult{File: path, Valid: err == nil}
				if err != nil {
					r.Error = err.Error()
					failed++
				}
				results = append(results, r)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Valid {
						fmt.Fprintf(out, "✓ %s\n", r.File)
					} else {
						fmt.Fprintf(out, "✗ %s: %s\n", r.File, r.Error)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d configuration files are invalid", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().String("schema", "", "Validate against this JSON schema instead of the embedded one")

	return cmd
}
