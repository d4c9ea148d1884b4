package services

import "context"

type contextKey string

const (
	jobKeyKey      contextKey = "job_key"
	instanceKeyKey contextKey = "instance_key"
	workerKeyKey   contextKey = "worker_key"
	requestIDKey   contextKey = "request_id"
)

// WithJobKey annotates context with the job being executed or mutated.
func WithJobKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKeyKey, key)
}

// JobKeyFromContext extracts the job key if present.
func JobKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithInstanceKey annotates context with the owning instance key.
func WithInstanceKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, instanceKeyKey, key)
}

// InstanceKeyFromContext returns the instance key if present.
func InstanceKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(instanceKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithWorkerKey annotates context with the worker slot executing a job.
func WithWorkerKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, workerKeyKey, key)
}

// WorkerKeyFromContext returns the worker key if present.
func WorkerKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workerKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
