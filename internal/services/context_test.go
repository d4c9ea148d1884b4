package services_test

import (
	"context"
	"testing"

	"encodefleet/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobKey(ctx, "job-1")
	ctx = services.WithInstanceKey(ctx, "inst-1")
	ctx = services.WithWorkerKey(ctx, "worker-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if key, ok := services.JobKeyFromContext(ctx); !ok || key != "job-1" {
		t.Fatalf("unexpected job key: %v %v", key, ok)
	}
	if key, ok := services.InstanceKeyFromContext(ctx); !ok || key != "inst-1" {
		t.Fatalf("unexpected instance key: %v %v", key, ok)
	}
	if key, ok := services.WorkerKeyFromContext(ctx); !ok || key != "worker-1" {
		t.Fatalf("unexpected worker key: %v %v", key, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobKey(ctx, "")
	ctx = services.WithRequestID(ctx, "")
	if _, ok := services.JobKeyFromContext(ctx); ok {
		t.Fatal("expected no job key value")
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id value")
	}
}
