package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   Code
		wantStatus int
	}{
		{"not found", fmt.Errorf("job x: %w", queue.ErrNotFound), CodeNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("retry: %w", queue.ErrInvalidTransition), CodeInvalidTransition, http.StatusConflict},
		{"invalid argument", fmt.Errorf("%w: bad", queue.ErrInvalidArgument), CodeValidation, http.StatusBadRequest},
		{"input validation", services.Wrap(services.ErrValidation, "encoding", "parse input", "source is required", nil), CodeValidation, http.StatusBadRequest},
		{"capacity", queue.ErrCapacityExhausted, CodeCapacityExhausted, http.StatusServiceUnavailable},
		{"api error passes through", NewError(CodePasswordInvalid, "password is invalid"), CodePasswordInvalid, http.StatusUnauthorized},
		{"rate limited", NewError(CodeRateLimited, "slow down"), CodeRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("disk I/O error at /var/lib/fleet.db"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code != tt.wantCode || got.Status != tt.wantStatus {
				t.Fatalf("Classify = %s/%d, want %s/%d", got.Code, got.Status, tt.wantCode, tt.wantStatus)
			}
		})
	}
}

func TestClassifyHidesInternalDetails(t *testing.T) {
	cause := errors.New("database is locked: /srv/fleet.db")
	got := Classify(cause)
	if got.Message != "internal error" {
		t.Fatalf("expected generic message, got %q", got.Message)
	}
	if !errors.Is(got, cause) {
		t.Fatalf("expected cause to stay wrapped for logging")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
