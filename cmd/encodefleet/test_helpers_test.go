package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

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

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	configPath string
	address    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.Instance.ExecuteJobs = false
	}))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	registry := fleet.NewRegistry(cfg, store, logger)
	dispatcher := notifications.NewDispatcher(cfg, store, notifications.NewSenders(cfg), logger)
	consumer := notifications.NewCompletionConsumer(cfg, store, logger, dispatcher.Wake)
	mgr := workflow.NewManager(cfg, store, registry, noopExecutor{}, logger, workflow.WithEventSink(consumer))
	blobs, err := blob.NewLocalFS(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	svc := api.NewService(cfg, store, blobs, logger,
		api.WithRunCanceller(mgr),
		api.WithCompletionSink(consumer),
		api.WithSchedulerWake(mgr.Wake),
		api.WithNotifierWake(dispatcher.Wake),
	)
	d, err := daemon.New(cfg, store, logger, mgr, svc)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		configPath: configPath,
		address:    d.Address(),
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath}
	if env.address != "" {
		flags = append(flags, "--api", env.address)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
