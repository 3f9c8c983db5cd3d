package simulation

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/behavior"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"Zero width", func(c *Config) { c.MapWidth = 0 }, "mapWidth"},
		{"Negative depth", func(c *Config) { c.MapDepth = -1 }, "mapDepth"},
		{"Negative radius", func(c *Config) { c.CohesionRadius = -2 }, "cohesionRadius"},
		{"NaN weight", func(c *Config) { c.AlignmentWeight = math.NaN() }, "alignmentWeight"},
		{"Min above max", func(c *Config) { c.MinSpeed, c.MaxSpeed = 3, 2 }, "minSpeed"},
		{"Zero max speed", func(c *Config) { c.MinSpeed, c.MaxSpeed = 0, 0 }, "maxSpeed"},
		{"Negative rotation", func(c *Config) { c.RotationSpeed = -1 }, "rotationSpeed"},
		{"Unknown boundary", func(c *Config) { c.BoundaryPolicy = behavior.BoundaryPolicy(9) }, "boundaryPolicy"},
		{"Unknown mode", func(c *Config) { c.ExecutionMode = ExecutionMode(9) }, "executionMode"},
		{"Negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"Negative population", func(c *Config) { c.Population = -5 }, "population"},
		{"Zero tick rate", func(c *Config) { c.TickRate = 0 }, "tickRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v; want ErrInvalidConfig", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("Validate() = %v; want a ConfigError on %s", err, tt.field)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MapWidth = -1
	cfg.TickRate = -1
	err := cfg.Validate()
	for _, field := range []string{"mapWidth", "tickRate"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "flock.json", `{
		"mapWidth": 40,
		"mapDepth": 12,
		"radiusPolicy": "tiered",
		"visionRadius": 6,
		"boundaryPolicy": "destiny_invert",
		"executionMode": "batch",
		"executor": "actor",
		"population": 300,
		"seed": 77
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MapWidth != 40 || cfg.MapDepth != 12 || cfg.VisionRadius != 6 {
		t.Errorf("world fields not loaded: %+v", cfg.Settings)
	}
	if cfg.RadiusPolicy != behavior.RadiusTiered || cfg.BoundaryPolicy != behavior.BoundaryDestinyInvert {
		t.Errorf("policies not loaded: %v %v", cfg.RadiusPolicy, cfg.BoundaryPolicy)
	}
	if cfg.ExecutionMode != Batch || cfg.Executor != ExecutorActor || cfg.Population != 300 || cfg.Seed != 77 {
		t.Errorf("host fields not loaded: %+v", cfg)
	}
	// absent keys keep their defaults
	if cfg.MapHeight != DefaultConfig().MapHeight || cfg.TickRate != DefaultConfig().TickRate {
		t.Errorf("defaults lost: mapHeight %v tickRate %v", cfg.MapHeight, cfg.TickRate)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "flock.yaml", `
mapWidth: 25
mapHeight: 15
separationWeight: 1.5
isolationPolicy: forward
workers: 4
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MapWidth != 25 || cfg.MapHeight != 15 || cfg.SeparationWeight != 1.5 || cfg.Workers != 4 {
		t.Errorf("yaml fields not loaded: %+v", cfg)
	}
	if cfg.IsolationPolicy != behavior.IsolationForward {
		t.Errorf("isolationPolicy = %v", cfg.IsolationPolicy)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
		invalid  bool
	}{
		{"Unknown key", "a.json", `{"perceptionRadius": 3}`, "config validation failed", false},
		{"Bad enum", "b.json", `{"boundaryPolicy": "wrap"}`, "config validation failed", false},
		{"Wrong type", "c.yaml", "mapWidth: wide\n", "config validation failed", false},
		{"Negative radius", "d.json", `{"separationRadius": -1}`, "config validation failed", false},
		{"Broken json", "e.json", `{"mapWidth": `, "failed to decode config json", false},
		{"Broken yaml", "f.yml", "mapWidth: [1,\n", "failed to decode config yaml", false},
		{"Min above max", "g.json", `{"minSpeed": 5, "maxSpeed": 1}`, "minSpeed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.invalid {
				t.Errorf("errors.Is(ErrInvalidConfig) = %v; want %v", got, tt.invalid)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestLoadConfigWithSchema(t *testing.T) {
	schema := writeFile(t, "config.schema.json", Schema())
	path := writeFile(t, "flock.json", `{"population": 12}`)
	cfg, err := LoadConfigWithSchema(path, schema)
	if err != nil {
		t.Fatalf("LoadConfigWithSchema: %v", err)
	}
	if cfg.Population != 12 {
		t.Errorf("population = %d; want 12", cfg.Population)
	}
	if _, err := LoadConfigWithSchema(path, filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Errorf("expected a schema compile error")
	}
}

func TestDecodeConfig_OverlaysBase(t *testing.T) {
	base := DefaultConfig()
	base.Population = 500
	got, err := DecodeConfig(strings.NewReader(`{"cohesionWeight": 0.9}`), FormatJSON, base)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if got.CohesionWeight != 0.9 || got.Population != 500 {
		t.Errorf("overlay wrong: cohesion %v population %d", got.CohesionWeight, got.Population)
	}
	if base.CohesionWeight == 0.9 {
		t.Errorf("base was modified")
	}

	empty, err := DecodeConfig(strings.NewReader(""), FormatYAML, base)
	if err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
	if *empty != *base {
		t.Errorf("empty document should keep the base")
	}
}

func TestConfig_JSONUsesNames(t *testing.T) {
	b, err := json.Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"executionMode":"sequential"`, `"boundaryPolicy":"reflect_clamp"`, `"mapWidth":10`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("%s missing from %s", want, b)
		}
	}

	var back Config
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != *DefaultConfig() {
		t.Errorf("round trip changed the config")
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML, "b.YML": FormatYAML, "c.json": FormatJSON, "d": FormatJSON,
	} {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q; want %q", path, got, want)
		}
	}
}
