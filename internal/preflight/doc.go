// Package preflight provides readiness checks for the filesystem paths,
// external binaries and delivery targets encodefleet depends on.
//
// The daemon runs RunAll once at startup and logs failures as warnings; a
// failed check never stops the daemon because the operator may fix the
// environment while it runs. The CLI "config validate" command prints the same
// results.
package preflight
