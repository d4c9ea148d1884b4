package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"encodefleet/internal/api"
	"encodefleet/internal/blob"
	"encodefleet/internal/config"
	"encodefleet/internal/daemon"
	"encodefleet/internal/fleet"
	"encodefleet/internal/logging"
	"encodefleet/internal/notifications"
	"encodefleet/internal/queue"
	"encodefleet/internal/testsupport"
	"encodefleet/internal/workflow"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, *queue.Job) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func newDaemon(t *testing.T, cfg *config.Config, store *queue.Store) *daemon.Daemon {
	t.Helper()
	logger := logging.NewNop()
	registry := fleet.NewRegistry(cfg, store, logger)
	dispatcher := notifications.NewDispatcher(cfg, store, notifications.NewSenders(cfg), logger)
	consumer := notifications.NewCompletionConsumer(cfg, store, logger, dispatcher.Wake)
	mgr := workflow.NewManager(cfg, store, registry, noopExecutor{}, logger, workflow.WithEventSink(consumer))
	blobs, err := blob.NewLocalFS(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	svc := api.NewService(cfg, store, blobs, logger,
		api.WithRunCanceller(mgr),
		api.WithCompletionSink(consumer),
		api.WithSchedulerWake(mgr.Wake),
		api.WithNotifierWake(dispatcher.Wake),
	)
	d, err := daemon.New(cfg, store, logger, mgr, svc, daemon.WithDispatcher(dispatcher))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, store)
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected running status, got %+v", status)
	}
	if !status.Dispatching {
		t.Fatal("MASTER with notifications enabled should dispatch")
	}
	if status.Address == "" || status.DBPath != cfg.DatabasePath() {
		t.Fatalf("unexpected status paths: %+v", status)
	}

	resp, err := http.Get("http://" + status.Address + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to report stopped")
	}
	if d.Address() != "" {
		t.Fatal("expected listener to be released")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := newDaemon(t, cfg, store)
	second := newDaemon(t, cfg, store)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	t.Cleanup(first.Stop)

	err := second.Start(ctx)
	if err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSlaveDoesNotDispatchNotifications(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSlave())
	store := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, store)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	if d.Status(ctx).Dispatching {
		t.Fatal("SLAVE instances must not run the notification dispatcher")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
