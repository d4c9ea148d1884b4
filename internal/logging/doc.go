// Package logging assembles structured slog loggers and formatting helpers used
// across encodefleet services.
//
// It owns the configurable console/JSON handlers, mirrors daemon output into a
// JSON log file under the configured log directory, and exposes context-aware
// helpers so scheduler and API code can tag log lines with job, instance and
// worker keys plus correlation IDs. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
