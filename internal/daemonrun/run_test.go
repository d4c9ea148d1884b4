package daemonrun

import (
	"context"
	"testing"

	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
	"encodefleet/internal/testsupport"
)

func TestBuildWiresDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}

	d, err := build(cfg, store, logging.NewNop())
	if err != nil {
		store.Close()
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Dispatching {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Workflow.InstanceKey != cfg.Instance.Key {
		t.Fatalf("instance key = %q, want %q", status.Workflow.InstanceKey, cfg.Instance.Key)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "info"); got != "info" {
		t.Fatalf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty("debug", "info"); got != "debug" {
		t.Fatalf("firstNonEmpty = %q", got)
	}
}
