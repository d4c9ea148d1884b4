package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestTeeCollapsesMissingHandlers(t *testing.T) {
	if _, ok := tee(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when both sides are nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := tee(nil, inner); h != inner {
		t.Fatal("expected the file handler to be returned unwrapped")
	}
	if h := tee(inner, nil); h != inner {
		t.Fatal("expected the output handler to be returned unwrapped")
	}
}

func TestTeeRespectsEachLevel(t *testing.T) {
	var outBuf, fileBuf bytes.Buffer
	h := tee(
		slog.NewJSONHandler(&outBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).With(FieldJobKey, "abc")
	logger.Info("job dispatched")
	logger.Warn("blob delete failed")

	if strings.Contains(outBuf.String(), "job dispatched") {
		t.Fatalf("warn-level output received info record: %s", outBuf.String())
	}
	if got := strings.Count(fileBuf.String(), "\n"); got != 2 {
		t.Fatalf("expected 2 records in file, got %d: %s", got, fileBuf.String())
	}
	if !strings.Contains(outBuf.String(), `"job_key":"abc"`) {
		t.Fatalf("expected attrs on both sides: %s", outBuf.String())
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected tee enabled when either side accepts the level")
	}
}

func TestJSONHandlerRewritesKeys(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, true))
	logger.Warn("notification exhausted", slog.Group("details", slog.String("level", "kept")))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key: %v", record)
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v", record["level"])
	}
	if src, _ := record["source"].(string); !strings.Contains(src, "handlers_test.go:") {
		t.Fatalf("source = %v", record["source"])
	}
	details, _ := record["details"].(map[string]any)
	if details["level"] != "kept" {
		t.Fatalf("grouped attrs must not be rewritten: %v", record["details"])
	}
}
