package simulation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/behavior"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Config is the simulation configuration shared by every tick.
// It is read-only while a tick runs and may be swapped wholesale between ticks.
type Config struct {
	behavior.Settings

	ExecutionMode ExecutionMode `json:"executionMode"`
	Executor      ExecutorKind  `json:"executor"`
	Workers       int           `json:"workers"`       // 0 = GOMAXPROCS
	WorkgroupSize int           `json:"workgroupSize"` // 0 = DefaultWorkgroupSize

	// Host parameters
	Population  int     `json:"population"`
	Seed        uint64  `json:"seed"`
	SpawnMargin float64 `json:"spawnMargin"`
	TickRate    float64 `json:"tickRate"` // ticks per second, dt = 1/TickRate
}

func DefaultConfig() *Config {
	return &Config{
		Settings: behavior.Settings{
			MapWidth:         10,
			MapHeight:        10,
			RadiusPolicy:     behavior.RadiusIndependent,
			SeparationRadius: 1,
			AlignmentRadius:  2,
			CohesionRadius:   3,
			VisionRadius:     3,
			SeparationWeight: 0.1,
			AlignmentWeight:  0.1,
			CohesionWeight:   0.1,
			MinSpeed:         0.3,
			MaxSpeed:         2,
			RotationSpeed:    8,
			BoundaryPolicy:   behavior.BoundaryReflectClamp,
			IsolationPolicy:  behavior.IsolationKeepVelocity,
		},
		ExecutionMode: Sequential,
		Executor:      ExecutorPool,
		WorkgroupSize: DefaultWorkgroupSize,
		Population:    10,
		Seed:          1,
		SpawnMargin:   3,
		TickRate:      60,
	}
}

// Validate checks every field and returns all problems joined together.
// The returned error matches ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	positive := func(field string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			errs = append(errs, configErr(field, "must be a positive number, got %v", v))
		}
	}
	nonNegative := func(field string, v float64) {
		if !(v >= 0) || math.IsInf(v, 0) {
			errs = append(errs, configErr(field, "must be a non negative number, got %v", v))
		}
	}
	finite := func(field string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, configErr(field, "must be finite, got %v", v))
		}
	}
	known := func(field string, s fmt.Stringer) {
		if strings.HasPrefix(s.String(), "unknown") {
			errs = append(errs, configErr(field, "has %s", s))
		}
	}

	positive("mapWidth", c.MapWidth)
	positive("mapHeight", c.MapHeight)
	nonNegative("mapDepth", c.MapDepth)

	known("radiusPolicy", c.RadiusPolicy)
	nonNegative("separationRadius", c.SeparationRadius)
	nonNegative("alignmentRadius", c.AlignmentRadius)
	nonNegative("cohesionRadius", c.CohesionRadius)
	nonNegative("visionRadius", c.VisionRadius)

	finite("separationWeight", c.SeparationWeight)
	finite("alignmentWeight", c.AlignmentWeight)
	finite("cohesionWeight", c.CohesionWeight)

	nonNegative("minSpeed", c.MinSpeed)
	positive("maxSpeed", c.MaxSpeed)
	if c.MinSpeed > c.MaxSpeed {
		errs = append(errs, configErr("minSpeed", "%v is greater than maxSpeed %v", c.MinSpeed, c.MaxSpeed))
	}
	nonNegative("rotationSpeed", c.RotationSpeed)

	known("boundaryPolicy", c.BoundaryPolicy)
	known("isolationPolicy", c.IsolationPolicy)
	known("executionMode", c.ExecutionMode)
	known("executor", c.Executor)

	if c.Workers < 0 {
		errs = append(errs, configErr("workers", "must not be negative, got %d", c.Workers))
	}
	if c.WorkgroupSize < 0 {
		errs = append(errs, configErr("workgroupSize", "must not be negative, got %d", c.WorkgroupSize))
	}
	if c.Population < 0 {
		errs = append(errs, configErr("population", "must not be negative, got %d", c.Population))
	}
	nonNegative("spawnMargin", c.SpawnMargin)
	positive("tickRate", c.TickRate)

	return errors.Join(errs...)
}

// Format is a configuration document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses the document format from a file extension.
// Anything that is not .yaml or .yml is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

//go:embed config.schema.json
var configSchemaJSON string

var embeddedSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("config.schema.json", configSchemaJSON)
})

// Schema returns the JSON schema used to validate configuration documents.
func Schema() string {
	return configSchemaJSON
}

// LoadConfig reads a JSON or YAML configuration file, validates it against the
// embedded schema, overlays it on DefaultConfig and checks the result.
func LoadConfig(configFile string) (*Config, error) {
	sch, err := embeddedSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return loadFile(configFile, sch)
}

// LoadConfigWithSchema is LoadConfig with an external schema file.
func LoadConfigWithSchema(configFile string, schemaFile string) (*Config, error) {
	sch, err := jsonschema.Compile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return loadFile(configFile, sch)
}

// DecodeConfig reads a configuration document from r and overlays it on base.
// Fields absent from the document keep the base value. base is not modified.
func DecodeConfig(r io.Reader, format Format, base *Config) (*Config, error) {
	sch, err := embeddedSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(b, format, base, sch)
}

func loadFile(configFile string, sch *jsonschema.Schema) (*Config, error) {
	b, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return decode(b, FormatFromPath(configFile), DefaultConfig(), sch)
}

func decode(b []byte, format Format, base *Config, sch *jsonschema.Schema) (*Config, error) {
	raw, err := toJSON(b, format)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode config json: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := *base
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// toJSON normalises a document to JSON so a single schema serves both formats.
func toJSON(b []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return b, nil
	case FormatYAML:
		var doc map[string]any
		if err := yaml.NewDecoder(bytes.NewReader(b)).Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return []byte("{}"), nil
			}
			return nil, fmt.Errorf("failed to decode config yaml: %w", err)
		}
		if doc == nil {
			return []byte("{}"), nil
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert config yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// MarshalYAML lets yaml.v3 write a Config with the same keys as JSON.
func (c Config) MarshalYAML() (any, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
