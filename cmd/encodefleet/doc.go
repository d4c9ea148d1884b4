// Command encodefleet is the operator CLI for an encodefleet fleet.
//
// "encodefleet run" starts the daemon in the foreground. Every other command
// talks to a running daemon over its HTTP API, logging in with api.password
// from the configuration (or ENCODEFLEET_API_PASSWORD), and prints tables by
// default or raw JSON with --json.
package main
