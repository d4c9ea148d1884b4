// Package config loads, normalizes, and validates encodefleet configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ENCODEFLEET_API_PASSWORD. The Config type centralizes every knob the daemon
// and CLI need, allowing fleet capacity, scheduler timing, and notification
// retry policy to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
