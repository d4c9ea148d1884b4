// Package daemon coordinates the long-running encodefleet process.
//
// It wires configuration, the fleet store, the workflow manager, the
// notification dispatcher and the HTTP API into a single lifecycle with
// flock-based locking so only one daemon per data directory runs at a time.
// The HTTP surface is a chi router that speaks the JSON envelope defined in
// internal/api; session auth and the per-IP limiter on POST /auth live here
// because they hold process-local state.
//
// Keep orchestration logic here: scheduling lives in internal/workflow,
// delivery in internal/notifications and request semantics in internal/api.
package daemon
