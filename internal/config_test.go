package internal

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.App.HTTP.Port)
	}
	if cfg.Pipeline.StepTimeout.Std() != 5*time.Second {
		t.Errorf("step timeout = %v, want 5s", cfg.Pipeline.StepTimeout.Std())
	}
	if cfg.Telemetry.ForwardingEnabled() {
		t.Error("default config should not forward telemetry")
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := HTTPConfig{Port: 9090}
	if got := cfg.Address(); got != ":9090" {
		t.Errorf("address = %q, want :9090", got)
	}
}

func TestHTTPConfig_PortRange(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 should fail validation")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("port above 65535 should fail validation")
	}
}

func TestPipelineConfig_NegativeTimeout(t *testing.T) {
	cfg := PipelineConfig{StepTimeout: Duration(-time.Second)}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative step timeout should fail validation")
	}
}

func TestTelemetryConfig_EmptyModeDefaultsMemory(t *testing.T) {
	cfg := TelemetryConfig{Mode: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to memory: %v", err)
	}
	if cfg.Mode != TelemetryModeMemory {
		t.Errorf("mode = %q, want %q", cfg.Mode, TelemetryModeMemory)
	}
	if cfg.ForwardingEnabled() {
		t.Error("memory mode should not be forwarding")
	}
}

func TestTelemetryConfig_HTTPModeRequiresURL(t *testing.T) {
	cfg := TelemetryConfig{Mode: "http", URL: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("http mode with empty url should fail")
	}
	if !strings.Contains(err.Error(), "url is empty") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.URL = "http://localhost:9000/telemetry"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("http mode with url should pass: %v", err)
	}
	if !cfg.ForwardingEnabled() {
		t.Error("http mode should be forwarding")
	}
}

func TestTelemetryConfig_InvalidMode(t *testing.T) {
	cfg := TelemetryConfig{Mode: "kafka"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_TelemetryValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Telemetry.Mode = "http"
	cfg.Telemetry.URL = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch telemetry error")
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal([]byte("step_timeout: 250ms\n"), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if cfg.StepTimeout.Std() != 250*time.Millisecond {
		t.Errorf("step timeout = %v, want 250ms", cfg.StepTimeout.Std())
	}

	if err := yaml.Unmarshal([]byte("step_timeout: soon\n"), &cfg); err == nil {
		t.Fatal("unparseable duration should fail")
	}
}

func TestConfig_UnmarshalFullDocument(t *testing.T) {
	doc := `
app:
  log_level: DEBUG
  http:
    port: 9191
pipeline:
  step_timeout: 2s
schemas:
  seed_dir: ./mappings
telemetry:
  mode: http
  url: http://collector:9000/telemetry
  timeout: 1s
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config should pass: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want DEBUG", cfg.App.LogLevel)
	}
	if cfg.App.HTTP.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.App.HTTP.Port)
	}
	if cfg.Pipeline.StepTimeout.Std() != 2*time.Second {
		t.Errorf("step timeout = %v, want 2s", cfg.Pipeline.StepTimeout.Std())
	}
	if cfg.Schemas.SeedDir != "./mappings" {
		t.Errorf("seed dir = %q, want ./mappings", cfg.Schemas.SeedDir)
	}
	if cfg.Telemetry.Timeout.Std() != time.Second {
		t.Errorf("telemetry timeout = %v, want 1s", cfg.Telemetry.Timeout.Std())
	}
}
