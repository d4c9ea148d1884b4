package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateInstance(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateStats(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Password == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/encodefleet/config.toml"
		}
		return fmt.Errorf("api.password is required. Set ENCODEFLEET_API_PASSWORD env var or edit %s (create with 'encodefleet config init')", defaultPath)
	}
	return ensurePositiveMap(map[string]int{
		"api.session_ttl":          c.API.SessionTTL,
		"api.auth_rate_per_minute": c.API.AuthRatePerMinute,
		"api.auth_burst":           c.API.AuthBurst,
	})
}

func (c *Config) validateInstance() error {
	switch c.Instance.Type {
	case InstanceTypeMaster, InstanceTypeSlave:
	default:
		return fmt.Errorf("instance.type must be %s or %s, got %q", InstanceTypeMaster, InstanceTypeSlave, c.Instance.Type)
	}
	if c.Instance.WorkersPerCPUCore <= 0 {
		return errors.New("instance.workers_per_cpu_core must be positive")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.poll_interval":        c.Scheduler.PollInterval,
		"scheduler.error_retry_interval": c.Scheduler.ErrorRetryInterval,
		"scheduler.job_timeout":          c.Scheduler.JobTimeout,
		"blob.timeout":                   c.Blob.Timeout,
	}); err != nil {
		return err
	}
	if c.Scheduler.HeartbeatInterval <= 0 {
		return errors.New("scheduler.heartbeat_interval must be positive")
	}
	if c.Scheduler.HeartbeatTimeout <= 0 {
		return errors.New("scheduler.heartbeat_timeout must be positive")
	}
	if c.Scheduler.HeartbeatTimeout <= c.Scheduler.HeartbeatInterval {
		return errors.New("scheduler.heartbeat_timeout must be greater than scheduler.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.poll_interval":        c.Notifications.PollInterval,
		"notifications.batch_size":           c.Notifications.BatchSize,
		"notifications.claim_lease":          c.Notifications.ClaimLease,
		"notifications.request_timeout":      c.Notifications.RequestTimeout,
		"notifications.try_max":              c.Notifications.TryMax,
		"notifications.backoff_base_seconds": c.Notifications.BackoffBaseSeconds,
	}); err != nil {
		return err
	}
	switch c.Notifications.Backoff {
	case BackoffExponential, BackoffLinear, BackoffFixed:
	default:
		return fmt.Errorf("notifications.backoff must be one of %s, %s, %s", BackoffExponential, BackoffLinear, BackoffFixed)
	}
	if c.Notifications.ClaimLease <= c.Notifications.RequestTimeout {
		return errors.New("notifications.claim_lease must be greater than notifications.request_timeout")
	}
	if c.Notifications.WebhookURL != "" {
		parsed, err := url.Parse(c.Notifications.WebhookURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notifications.webhook_url must be an absolute URL, got %q", c.Notifications.WebhookURL)
		}
	}
	if c.Notifications.NtfyTopic != "" && !strings.HasPrefix(c.Notifications.NtfyTopic, "http") {
		return errors.New("notifications.ntfy_topic must be a full topic URL (https://ntfy.sh/<topic>)")
	}
	return nil
}

func (c *Config) validateStats() error {
	if c.Stats.Interval <= 0 {
		return errors.New("stats.interval must be positive")
	}
	if c.Stats.RetentionDays < 0 {
		return errors.New("stats.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
