// Package notifications delivers job completion notices to external targets.
//
// The CompletionConsumer turns each accepted completion into PENDING rows, one
// per configured default target and one per target listed in the job input.
// The Dispatcher runs on the MASTER only: it claims due rows under a lease,
// hands each to the Sender registered for its type and records the result.
// Failed attempts are rescheduled with the configured Backoff until try_max
// attempts are spent.
//
// Three transports ship with the package: WEBHOOK (JSON POST), NTFY (plain
// text POST with ntfy headers) and REDIS (PUBLISH on a channel).
package notifications
