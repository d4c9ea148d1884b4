package logging

import (
	"context"
	"log/slog"

	"encodefleet/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobKey identifies the job a record relates to.
	FieldJobKey = "job_key"
	// FieldInstanceKey identifies the owning fleet instance.
	FieldInstanceKey = "instance_key"
	// FieldWorkerKey identifies the worker slot.
	FieldWorkerKey = "worker_key"
	// FieldNotificationKey identifies a notification delivery task.
	FieldNotificationKey = "notification_key"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the machine-readable event a record describes.
	FieldEventType = "event_type"
	// FieldErrorHint suggests an operator next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if key, ok := services.JobKeyFromContext(ctx); ok {
		fields = append(fields, JobKey(key))
	}
	if key, ok := services.InstanceKeyFromContext(ctx); ok {
		fields = append(fields, InstanceKey(key))
	}
	if key, ok := services.WorkerKeyFromContext(ctx); ok {
		fields = append(fields, WorkerKey(key))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
