package services_test

import (
	"errors"
	"strings"
	"testing"

	"encodefleet/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "encode", "ffmpeg", "exit status 1", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"encode", "ffmpeg", "exit status 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrTimeout, "encode", "run", "deadline", nil), "timeout"},
		{services.Wrap(services.ErrValidation, "input", "parse", "bad", nil), "validation"},
		{services.Wrap(services.ErrExternalTool, "encode", "run", "exit", errors.New("x")), "external_tool"},
		{services.Wrap(nil, "blob", "put", "io", nil), "transient"},
		{errors.New("plain"), "transient"},
	}
	for _, tc := range tests {
		if got := services.FailureKind(tc.err); got != tc.want {
			t.Fatalf("FailureKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
