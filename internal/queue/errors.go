package queue

import "errors"

var (
	// ErrNotFound reports that a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition reports a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrCapacityExhausted reports that every worker slot on an instance is bound.
	ErrCapacityExhausted = errors.New("capacity exhausted")
	// ErrDuplicateCompletion reports a completion for an attempt that already completed.
	ErrDuplicateCompletion = errors.New("duplicate completion")
	// ErrNoJob reports that no job is waiting for dispatch.
	ErrNoJob = errors.New("no job available")
	// ErrInvalidArgument reports malformed input to a store operation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
