package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	BlobDir string `toml:"blob_dir"`
}

// API contains HTTP surface and session settings.
type API struct {
	Bind              string `toml:"bind"`
	Password          string `toml:"password"`
	SessionTTL        int    `toml:"session_ttl"`
	AuthRatePerMinute int    `toml:"auth_rate_per_minute"`
	AuthBurst         int    `toml:"auth_burst"`
	Version           string `toml:"version"`
	Env               string `toml:"env"`
}

// Instance describes how this host registers itself with the fleet.
type Instance struct {
	Key               string `toml:"key"`
	Type              string `toml:"type"`
	Hostname          string `toml:"hostname"`
	WorkersPerCPUCore int    `toml:"workers_per_cpu_core"`
	WorkersMax        int    `toml:"workers_max"`
	ExecuteJobs       bool   `toml:"execute_jobs"`
}

// Scheduler contains dispatch loop timing.
type Scheduler struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	JobTimeout         int `toml:"job_timeout"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Executor configures the external encoder invoked for each job.
type Executor struct {
	Binary      string `toml:"binary"`
	ProbeBinary string `toml:"probe_binary"`
	WorkDir     string `toml:"work_dir"`
}

// Notifications contains delivery, retry and default target settings.
type Notifications struct {
	Enabled              bool   `toml:"enabled"`
	PollInterval         int    `toml:"poll_interval"`
	BatchSize            int    `toml:"batch_size"`
	ClaimLease           int    `toml:"claim_lease"`
	RequestTimeout       int    `toml:"request_timeout"`
	TryMax               int    `toml:"try_max"`
	Priority             int    `toml:"priority"`
	Backoff              string `toml:"backoff"`
	BackoffBaseSeconds   int    `toml:"backoff_base_seconds"`
	BackoffMaxSeconds    int    `toml:"backoff_max_seconds"`
	ResetTryCountOnRetry bool   `toml:"reset_try_count_on_retry"`
	OnSuccess            bool   `toml:"on_success"`
	OnFailure            bool   `toml:"on_failure"`
	WebhookURL           string `toml:"webhook_url"`
	NtfyTopic            string `toml:"ntfy_topic"`
	RedisAddr            string `toml:"redis_addr"`
	RedisChannel         string `toml:"redis_channel"`
}

// Blob configures artifact storage calls.
type Blob struct {
	Timeout int `toml:"timeout"`
}

// Stats configures the periodic stats recorder.
type Stats struct {
	Interval      int `toml:"interval"`
	RetentionDays int `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for encodefleet.
//
// Configuration sections by subsystem:
//   - Paths: data, log and blob directories
//   - API: HTTP bind address, password, sessions and envelope metadata
//   - Instance: host identity and worker capacity
//   - Scheduler: dispatch polling, job timeout and heartbeats
//   - Executor: external encoder binary
//   - Notifications: retry/backoff policy and default delivery targets
//   - Blob: artifact store call bounds
//   - Stats: snapshot interval and retention
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Instance      Instance      `toml:"instance"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Executor      Executor      `toml:"executor"`
	Notifications Notifications `toml:"notifications"`
	Blob          Blob          `toml:"blob"`
	Stats         Stats         `toml:"stats"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/encodefleet/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("encodefleet.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.BlobDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Executor.WorkDir) != "" {
		if err := os.MkdirAll(c.Executor.WorkDir, 0o755); err != nil {
			return fmt.Errorf("create executor work directory %q: %w", c.Executor.WorkDir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the shared SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "encodefleet.db")
}

// IsMaster reports whether this host registers as the MASTER instance.
func (c *Config) IsMaster() bool {
	return strings.EqualFold(c.Instance.Type, InstanceTypeMaster)
}

// Seconds converts an integer seconds knob into a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
