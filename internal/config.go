package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Telemetry forwarding modes.
const (
	TelemetryModeMemory = "memory"
	TelemetryModeHTTP   = "http"
)

// Duration wraps time.Duration so configs can say "5s" or "250ms"; yaml.v3
// has no native duration support.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Pipeline  PipelineConfig    `yaml:"pipeline"`
	Schemas   SchemasConfig     `yaml:"schemas"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// PipelineConfig holds message pipeline configuration. StepTimeout bounds
// every collaborator call a pipeline run makes; zero falls back to the
// built-in default.
type PipelineConfig struct {
	StepTimeout Duration `yaml:"step_timeout"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.StepTimeout < 0 {
		return fmt.Errorf("pipeline: step_timeout must not be negative")
	}
	return nil
}

// SchemasConfig holds schema seed configuration. SeedDir, when set, points
// at a directory of YAML mapping files loaded at startup and hot-reloaded on
// change; empty disables seeding.
type SchemasConfig struct {
	SeedDir string `yaml:"seed_dir"`
}

// TelemetryConfig holds telemetry forwarding configuration.
//
// Mode controls where emitted events go beyond the in-memory log:
//   - "memory" (default): events stay local.
//   - "http": events are also forwarded to URL, guarded by a circuit breaker.
type TelemetryConfig struct {
	Mode    string   `yaml:"mode"`
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// Validate validates the telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	// Normalise empty mode to "memory".
	if c.Mode == "" {
		c.Mode = TelemetryModeMemory
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(TelemetryModeMemory, TelemetryModeHTTP)),
	); err != nil {
		return err
	}
	if c.Mode == TelemetryModeHTTP && c.URL == "" {
		return fmt.Errorf("telemetry: mode is %q but url is empty", TelemetryModeHTTP)
	}
	return nil
}

// ForwardingEnabled returns true when events leave the process.
func (c *TelemetryConfig) ForwardingEnabled() bool {
	return c.Mode == TelemetryModeHTTP
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Pipeline: PipelineConfig{
			StepTimeout: Duration(5 * time.Second),
		},
		Telemetry: TelemetryConfig{
			Mode:    TelemetryModeMemory,
			Timeout: Duration(5 * time.Second),
		},
	}
}
