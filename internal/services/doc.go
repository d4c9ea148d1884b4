// Package services defines shared utilities consumed by the job executor,
// scheduler, and HTTP handlers.
//
// Key responsibilities:
//   - Context helpers that stamp job, instance, and worker keys plus
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate execution
//     failures into consistent outcome labels.
package services
