package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"encodefleet/internal/api"
	"encodefleet/internal/config"
	"encodefleet/internal/logging"
	"encodefleet/internal/notifications"
	"encodefleet/internal/queue"
	"encodefleet/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	workflow   *workflow.Manager
	dispatcher *notifications.Dispatcher
	closers    []io.Closer
	server     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	DBPath       string
	LockFilePath string
	Address      string
	Dispatching  bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithDispatcher hands the notification dispatcher to the daemon. It only
// runs on MASTER instances with notifications enabled.
func WithDispatcher(dispatcher *notifications.Dispatcher) Option {
	return func(d *Daemon) { d.dispatcher = dispatcher }
}

// WithCloser registers a resource released by Close, after the store.
func WithCloser(c io.Closer) Option {
	return func(d *Daemon) {
		if c != nil {
			d.closers = append(d.closers, c)
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, svc *api.Service, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil || svc == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and api service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "encodefleetd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.server = newAPIServer(cfg, svc, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the workflow manager, the
// notification dispatcher and the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another encodefleet daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	if d.dispatching() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.dispatcher.Run(runCtx)
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("encodefleet daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.address()),
		logging.InstanceKey(d.workflow.Status(runCtx).InstanceKey),
		logging.Bool("notifications", d.dispatching()),
	)
	return nil
}

func (d *Daemon) dispatching() bool {
	return d.dispatcher != nil &&
		d.cfg.Notifications.Enabled &&
		d.cfg.Instance.Type == config.InstanceTypeMaster
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("encodefleet daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		Address:      d.server.address(),
		Dispatching:  d.running.Load() && d.dispatching(),
	}
}

// Address returns the bound HTTP address, or "" before Start.
func (d *Daemon) Address() string {
	return d.server.address()
}
