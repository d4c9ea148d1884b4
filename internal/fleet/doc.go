// Package fleet registers the local host as a fleet instance and keeps it
// alive.
//
// Registry probes host facts, derives the instance key, upserts the instance
// row and refreshes its heartbeat. When a heartbeat finds the row gone (after
// a purge or an operator delete) the instance registers itself again.
package fleet
