// Package queue persists fleet state in SQLite and owns every state
// transition of instances, worker slots, jobs, outputs and notifications.
//
// Each operation that touches more than one row runs in a single IMMEDIATE
// transaction (withTx), so a job is never observed RUNNING without its worker
// and a worker is never BUSY without its job. Completion is keyed by the
// dispatch attempt; only the first report for an attempt is applied.
// Notification delivery results are conditional on the claimed try_count, so
// a concurrent skip or retry wins over a stale result.
//
// Schema changes bump schemaVersion in schema.go; operators clear the
// database to adopt the new schema.
package queue
