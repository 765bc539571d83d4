package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "bambufarm.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  address: "127.0.0.1:50051"
device:
  port: 8883
  qos: 1
sessions:
  queue_size: 8
  retry_delay: 2s
printers:
  - dev_id: "printer-1"
    name: "Left"
    model: "x1c"
    host: "192.168.1.40"
    password: "secret-1"
  - dev_id: "printer-2"
    name: "Right"
    model: "x1"
    host: "192.168.1.41"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:50051" {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, "127.0.0.1:50051")
	}
	if cfg.Sessions.QueueSize != 8 {
		t.Errorf("Sessions.QueueSize = %d, want 8", cfg.Sessions.QueueSize)
	}
	if cfg.Sessions.RetryDelay != 2*time.Second {
		t.Errorf("Sessions.RetryDelay = %v, want 2s", cfg.Sessions.RetryDelay)
	}
	if len(cfg.Printers) != 2 {
		t.Fatalf("len(Printers) = %d, want 2", len(cfg.Printers))
	}
	if cfg.Printers[0].Model != "x1c" {
		t.Errorf("Printers[0].Model = %q, want %q", cfg.Printers[0].Model, "x1c")
	}
	// Missing fields are kept for the roster builder to diagnose.
	if cfg.Printers[1].Password != "" {
		t.Errorf("Printers[1].Password = %q, want empty", cfg.Printers[1].Password)
	}

	// Untouched sections keep their defaults.
	if cfg.FTPS.Port != 990 {
		t.Errorf("FTPS.Port = %d, want 990", cfg.FTPS.Port)
	}
	if cfg.Device.Username != "bblp" {
		t.Errorf("Device.Username = %q, want %q", cfg.Device.Username, "bblp")
	}
}

func TestLoad_EndpointAlias(t *testing.T) {
	cfg, err := Load(writeConfig(t, `endpoint: "0.0.0.0:47403"`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != "0.0.0.0:47403" {
		t.Errorf("Server.Address = %q, want endpoint value", cfg.Server.Address)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/bambufarm.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
device:
  qos: 5
sessions:
  queue_size: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"device.qos", "sessions.queue_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
printers:
  - dev_id: "01S00C-123"
    name: "Left"
    model: "x1c"
    host: "192.168.1.40"
`
	t.Setenv("BAMBUFARM_SERVER_ADDRESS", "0.0.0.0:1234")
	t.Setenv("BAMBUFARM_LOG_LEVEL", "debug")
	t.Setenv("BAMBUFARM_HTTP_PORT", "9100")
	t.Setenv("BAMBUFARM_PRINTER_01S00C_123_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != "0.0.0.0:1234" {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, "0.0.0.0:1234")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.HTTP.Port != 9100 {
		t.Errorf("HTTP.Port = %d, want 9100", cfg.HTTP.Port)
	}
	if cfg.Printers[0].Password != "from-env" {
		t.Errorf("Printers[0].Password = %q, want %q", cfg.Printers[0].Password, "from-env")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty server address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: true,
		},
		{
			name:    "invalid device port",
			mutate:  func(c *Config) { c.Device.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "http port ignored when disabled",
			mutate:  func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
			wantErr: false,
		},
		{
			name:    "invalid http port",
			mutate:  func(c *Config) { c.HTTP.Port = 0 },
			wantErr: true,
		},
		{
			name:    "zero enumerate interval",
			mutate:  func(c *Config) { c.Sessions.EnumerateInterval = 0 },
			wantErr: true,
		},
		{
			name:    "no upload workers",
			mutate:  func(c *Config) { c.Uploads.MaxConcurrent = 0 },
			wantErr: true,
		},
		{
			name:    "missing ftps username",
			mutate:  func(c *Config) { c.FTPS.Username = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"01S00C000000001": "01S00C000000001",
		"left-x1c":        "LEFT_X1C",
		"a.b c":           "A_B_C",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.HTTP.Timeouts.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.HTTP.Timeouts.WriteTimeout(); got != 30*time.Second {
		t.Errorf("WriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.HTTP.Timeouts.IdleTimeout(); got != 60*time.Second {
		t.Errorf("IdleTimeout() = %v, want 60s", got)
	}
}
