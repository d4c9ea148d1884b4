package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeInstance()
	if err := c.normalizeExecutor(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = defaultBlobDir
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Password == "" {
		if value, ok := os.LookupEnv("ENCODEFLEET_API_PASSWORD"); ok {
			c.API.Password = value
		}
	}
	c.API.Env = strings.TrimSpace(c.API.Env)
	if value, ok := os.LookupEnv("ENCODEFLEET_ENV"); ok && strings.TrimSpace(value) != "" {
		c.API.Env = strings.TrimSpace(value)
	}
	if c.API.Env == "" {
		c.API.Env = defaultAPIEnv
	}
	c.API.Version = strings.TrimSpace(c.API.Version)
	if c.API.Version == "" {
		c.API.Version = defaultAPIVersion
	}
}

func (c *Config) normalizeInstance() {
	c.Instance.Key = strings.TrimSpace(c.Instance.Key)
	c.Instance.Hostname = strings.TrimSpace(c.Instance.Hostname)
	c.Instance.Type = strings.ToUpper(strings.TrimSpace(c.Instance.Type))
	if c.Instance.Type == "" {
		c.Instance.Type = InstanceTypeMaster
	}
}

func (c *Config) normalizeExecutor() error {
	c.Executor.Binary = strings.TrimSpace(c.Executor.Binary)
	if c.Executor.Binary == "" {
		c.Executor.Binary = defaultExecutorBinary
	}
	c.Executor.ProbeBinary = strings.TrimSpace(c.Executor.ProbeBinary)
	if strings.TrimSpace(c.Executor.WorkDir) == "" {
		c.Executor.WorkDir = filepath.Join(c.Paths.DataDir, "work")
		return nil
	}
	var err error
	if c.Executor.WorkDir, err = expandPath(c.Executor.WorkDir); err != nil {
		return fmt.Errorf("executor.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Backoff = strings.ToLower(strings.TrimSpace(c.Notifications.Backoff))
	if c.Notifications.Backoff == "" {
		c.Notifications.Backoff = defaultNotifyBackoff
	}
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.RedisAddr = strings.TrimSpace(c.Notifications.RedisAddr)
	if c.Notifications.RedisAddr == "" {
		if value, ok := os.LookupEnv("ENCODEFLEET_REDIS_ADDR"); ok {
			c.Notifications.RedisAddr = strings.TrimSpace(value)
		}
	}
	c.Notifications.RedisChannel = strings.TrimSpace(c.Notifications.RedisChannel)
	if c.Notifications.BackoffMaxSeconds < c.Notifications.BackoffBaseSeconds {
		c.Notifications.BackoffMaxSeconds = c.Notifications.BackoffBaseSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
