package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"encodefleet/internal/config"
	"encodefleet/internal/encoding"
	"encodefleet/internal/fleet"
	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// Manager dispatches jobs onto the local instance and runs the MASTER
// maintenance loops.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	registry     *fleet.Registry
	executor     encoding.Executor
	events       EventSink
	pollInterval time.Duration
	retryDelay   time.Duration
	jobTimeout   time.Duration

	heartbeat *HeartbeatMonitor
	stats     *StatsRecorder

	wake chan struct{}

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastJob    *queue.Job
	executions map[string]*execution
}

type execution struct {
	attempt   int
	cancel    context.CancelFunc
	started   time.Time
	abandoned bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithEventSink routes accepted completions to sink.
func WithEventSink(sink EventSink) ManagerOption {
	return func(m *Manager) {
		if sink != nil {
			m.events = sink
		}
	}
}

// NewManager constructs a workflow manager for the registry's instance.
func NewManager(cfg *config.Config, store *queue.Store, registry *fleet.Registry, executor encoding.Executor, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "workflow-manager"))
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		registry:     registry,
		executor:     executor,
		events:       nopSink{},
		pollInterval: config.Seconds(cfg.Scheduler.PollInterval),
		retryDelay:   config.Seconds(cfg.Scheduler.ErrorRetryInterval),
		jobTimeout:   config.Seconds(cfg.Scheduler.JobTimeout),
		wake:         make(chan struct{}, 1),
		executions:   make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.heartbeat = NewHeartbeatMonitor(store, logger,
		config.Seconds(cfg.Scheduler.HeartbeatInterval),
		config.Seconds(cfg.Scheduler.HeartbeatTimeout),
		m.events,
	)
	m.stats = NewStatsRecorder(store, logger, config.Seconds(cfg.Stats.Interval), cfg.Stats.RetentionDays)
	return m
}

// Wake asks the dispatch loop to look for work now instead of waiting for
// the next poll.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
