package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"encodefleet/internal/config"
	"encodefleet/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Passed || results[0].Detail != present {
		t.Fatalf("expected present binary to resolve, got %#v", results[0])
	}
	if results[1].Passed || results[1].Detail == "" {
		t.Fatalf("expected missing binary to fail with detail, got %#v", results[1])
	}
	if results[2].Passed || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected result for unset command: %#v", results[2])
	}
}

func TestCheckRedisUnreachable(t *testing.T) {
	result := CheckRedis(context.Background(), "127.0.0.1:1")
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
	if missing := CheckRedis(context.Background(), ""); missing.Passed || missing.Detail != "missing address" {
		t.Fatalf("unexpected result for empty address: %#v", missing)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg", "ffprobe"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Data directory", "Log directory", "Blob directory", "Work directory", "Encoder", "Probe"} {
		if !names[want] {
			t.Fatalf("missing check %q in %#v", want, results)
		}
	}
	if names["Redis"] {
		t.Fatal("redis check should be skipped without redis_addr")
	}
}

func TestRunAllSkipsBinariesWhenNotExecuting(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.Instance.ExecuteJobs = false
	}))
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "Encoder" || r.Name == "Probe" {
			t.Fatalf("binary check %q should be skipped", r.Name)
		}
	}
}
