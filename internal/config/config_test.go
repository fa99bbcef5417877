package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %s", cfg.Storage.Driver)
	}
	if cfg.Monitor.PollSpec != "*/3 * * * * *" {
		t.Fatalf("poll spec = %s", cfg.Monitor.PollSpec)
	}
	if cfg.Monitor.TokenDecimals != 6 {
		t.Fatalf("token decimals = %d", cfg.Monitor.TokenDecimals)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
  read_timeout: 5s
storage:
  driver: postgres
processor:
  base_url: https://processor.test
monitor:
  token_decimals: 18
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("read timeout = %s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("driver = %s", cfg.Storage.Driver)
	}
	if cfg.Processor.BaseURL != "https://processor.test" {
		t.Fatalf("base url = %s", cfg.Processor.BaseURL)
	}
	if cfg.Monitor.TokenDecimals != 18 {
		t.Fatalf("token decimals = %d", cfg.Monitor.TokenDecimals)
	}
	// Untouched sections keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Fatalf("log level = %s", cfg.Logging.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("MONITOR_POLL_SPEC", "*/5 * * * * *")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "redis" {
		t.Fatalf("driver = %s", cfg.Storage.Driver)
	}
	if cfg.Monitor.PollSpec != "*/5 * * * * *" {
		t.Fatalf("poll spec = %s", cfg.Monitor.PollSpec)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	bad := Default()
	bad.Storage.Driver = "cassandra"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unsupported driver error")
	}

	bad = Default()
	bad.Server.Port = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected port error")
	}

	bad = Default()
	bad.Monitor.TokenDecimals = -1
	if err := bad.Validate(); err == nil {
		t.Fatal("expected token decimals error")
	}
}
