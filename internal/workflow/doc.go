// Package workflow runs the daemon's background loops.
//
// Manager claims jobs for the local instance with queue.Store.DispatchNext,
// runs each dispatched job in its own goroutine under the configured job
// timeout, and reports the result with CompleteJob. It keeps a registry of
// in-flight executions so job deletion and purge can cancel them.
//
// On the MASTER instance the manager also runs the stale-instance reclaimer
// and the stats recorder. Every accepted completion, including the forced
// failures produced by reclaiming or deleting workers, is handed to the
// configured EventSink.
package workflow
