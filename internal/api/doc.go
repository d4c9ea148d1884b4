// Package api defines the HTTP wire format and the service layer behind it.
//
// Every response is an Envelope carrying version and environment metadata,
// a SUCCESSFUL or ERROR status, and optionally data, a message and
// pagination. Classify maps domain errors onto the public error codes; any
// error it does not recognize becomes INTERNAL_ERROR with a generic message.
//
// Service wraps queue.Store with the side effects an HTTP caller expects:
// waking the scheduler, cancelling local executions, removing blobs and
// handing completion events to the notification consumer.
//
// DTOs use snake_case JSON tags. Timestamps are RFC3339 with milliseconds in
// UTC. Input, outcome and specs columns pass through as json.RawMessage.
package api
