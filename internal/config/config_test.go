package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"encodefleet/internal/config"
)

func TestLoadDefaultConfigUsesEnvPasswordAndExpandsPaths(t *testing.T) {
	t.Setenv("ENCODEFLEET_API_PASSWORD", "secret")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "encodefleet")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.BlobDir != filepath.Join(wantData, "blobs") {
		t.Fatalf("unexpected blob dir: %q", cfg.Paths.BlobDir)
	}
	if cfg.API.Password != "secret" {
		t.Fatalf("expected password from env, got %q", cfg.API.Password)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if !cfg.IsMaster() {
		t.Fatal("expected MASTER instance type by default")
	}
	if cfg.Notifications.Backoff != config.BackoffExponential {
		t.Fatalf("unexpected backoff default: %q", cfg.Notifications.Backoff)
	}
	if !cfg.Notifications.ResetTryCountOnRetry {
		t.Fatal("expected try_count reset on retry by default")
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "encodefleet.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("ENCODEFLEET_API_PASSWORD", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	custom := config.Default()
	custom.API.Password = "from-file"
	custom.Paths.DataDir = "~/fleet"
	custom.Instance.Type = "slave"
	custom.Instance.WorkersMax = 2
	custom.Notifications.Backoff = " Linear "
	custom.Logging.Format = "JSON"

	configPath := filepath.Join(t.TempDir(), "config.toml")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "fleet") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Instance.Type != config.InstanceTypeSlave || cfg.IsMaster() {
		t.Fatalf("expected SLAVE instance, got %q", cfg.Instance.Type)
	}
	if cfg.Instance.WorkersMax != 2 {
		t.Fatalf("unexpected workers_max: %d", cfg.Instance.WorkersMax)
	}
	if cfg.Notifications.Backoff != config.BackoffLinear {
		t.Fatalf("unexpected backoff: %q", cfg.Notifications.Backoff)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENCODEFLEET_API_PASSWORD", "env-pass")
	t.Setenv("ENCODEFLEET_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("ENCODEFLEET_ENV", "staging")

	custom := config.Default()
	custom.API.Password = "file-pass"
	configPath := filepath.Join(t.TempDir(), "config.toml")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Password != "file-pass" {
		t.Errorf("expected file password to win, got %q", cfg.API.Password)
	}
	if cfg.Notifications.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.Notifications.RedisAddr)
	}
	if cfg.API.Env != "staging" {
		t.Errorf("expected env from ENCODEFLEET_ENV, got %q", cfg.API.Env)
	}
}

func TestLoadRequiresPassword(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENCODEFLEET_API_PASSWORD", "")
	t.Chdir(t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "api.password") {
		t.Fatalf("expected api.password error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "ENCODEFLEET_API_PASSWORD") {
		t.Fatalf("sample config missing password hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	defaults := config.Default()
	if cfg.Notifications.TryMax != defaults.Notifications.TryMax {
		t.Fatalf("sample try_max %d differs from default %d", cfg.Notifications.TryMax, defaults.Notifications.TryMax)
	}
	if cfg.Scheduler.JobTimeout != defaults.Scheduler.JobTimeout {
		t.Fatalf("sample job_timeout %d differs from default %d", cfg.Scheduler.JobTimeout, defaults.Scheduler.JobTimeout)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing password", func(c *config.Config) { c.API.Password = "" }},
		{"bad instance type", func(c *config.Config) { c.Instance.Type = "WORKER" }},
		{"zero workers per core", func(c *config.Config) { c.Instance.WorkersPerCPUCore = 0 }},
		{"zero poll interval", func(c *config.Config) { c.Scheduler.PollInterval = 0 }},
		{"heartbeat timeout not above interval", func(c *config.Config) {
			c.Scheduler.HeartbeatTimeout = c.Scheduler.HeartbeatInterval
		}},
		{"zero try max", func(c *config.Config) { c.Notifications.TryMax = 0 }},
		{"unknown backoff", func(c *config.Config) { c.Notifications.Backoff = "random" }},
		{"lease shorter than request", func(c *config.Config) {
			c.Notifications.ClaimLease = c.Notifications.RequestTimeout
		}},
		{"relative webhook", func(c *config.Config) { c.Notifications.WebhookURL = "/hooks" }},
		{"ntfy without scheme", func(c *config.Config) { c.Notifications.NtfyTopic = "encodefleet" }},
		{"zero blob timeout", func(c *config.Config) { c.Blob.Timeout = 0 }},
		{"negative stats retention", func(c *config.Config) { c.Stats.RetentionDays = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.API.Password = "secret"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	cfg.API.Password = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with password should validate: %v", err)
	}
}
