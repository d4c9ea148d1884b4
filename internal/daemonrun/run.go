package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"encodefleet/internal/api"
	"encodefleet/internal/blob"
	"encodefleet/internal/config"
	"encodefleet/internal/daemon"
	"encodefleet/internal/encoding"
	"encodefleet/internal/fleet"
	"encodefleet/internal/logging"
	"encodefleet/internal/notifications"
	"encodefleet/internal/preflight"
	"encodefleet/internal/queue"
	"encodefleet/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the encodefleet daemon and blocks until SIGINT/SIGTERM or ctx
// is cancelled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	logger, err := logging.New(logging.Options{
		Level:       firstNonEmpty(opts.LogLevel, cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupDaemonLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays)
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "encodefleetd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open fleet store", logging.Error(err))
		return err
	}

	d, err := build(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.bind, the daemon lock and fleet database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("encodefleet daemon shutting down")
	return nil
}

// build wires the runtime graph. Completions flow from the workflow manager
// and the API into the completion consumer, which wakes the dispatcher.
func build(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	local, err := blob.NewLocalFS(cfg.Paths.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	blobs := blob.WithTimeout(local, config.Seconds(cfg.Blob.Timeout))

	senders := notifications.NewSenders(cfg)
	dispatcher := notifications.NewDispatcher(cfg, store, senders, logger)
	consumer := notifications.NewCompletionConsumer(cfg, store, logger, dispatcher.Wake)

	registry := fleet.NewRegistry(cfg, store, logger)
	runner := encoding.NewRunner(cfg, store, blobs, logger)
	manager := workflow.NewManager(cfg, store, registry, runner, logger, workflow.WithEventSink(consumer))

	svc := api.NewService(cfg, store, blobs, logger,
		api.WithRunCanceller(manager),
		api.WithCompletionSink(consumer),
		api.WithSchedulerWake(manager.Wake),
		api.WithNotifierWake(dispatcher.Wake),
	)

	d, err := daemon.New(cfg, store, logger, manager, svc,
		daemon.WithDispatcher(dispatcher),
		daemon.WithCloser(senders),
	)
	if err != nil {
		senders.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		impact := "jobs may fail until fixed"
		if result.Optional {
			impact = "optional feature degraded"
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the environment; the daemon keeps running"),
			logging.String(logging.FieldImpact, impact),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
