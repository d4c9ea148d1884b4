package api

import (
	"context"
	"log/slog"

	"encodefleet/internal/blob"
	"encodefleet/internal/config"
	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// RunCanceller cancels executions running on this host.
type RunCanceller interface {
	Cancel(jobKeys ...string) int
	CancelAll() int
}

// CompletionSink receives completion events produced by API writes.
type CompletionSink interface {
	HandleCompletion(ctx context.Context, event queue.CompletionEvent)
}

// Service implements the API operations on top of the fleet store.
type Service struct {
	store  *queue.Store
	blobs  blob.Store
	logger *slog.Logger

	runs           RunCanceller
	events         CompletionSink
	wakeScheduler  func()
	wakeNotifier   func()
	resetTryCount  bool
	notifyTryMax   int
	notifyPriority int
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithRunCanceller lets deletes and purges stop local executions.
func WithRunCanceller(runs RunCanceller) ServiceOption {
	return func(s *Service) { s.runs = runs }
}

// WithCompletionSink receives completions caused by API writes.
func WithCompletionSink(sink CompletionSink) ServiceOption {
	return func(s *Service) { s.events = sink }
}

// WithSchedulerWake is called after jobs become dispatchable.
func WithSchedulerWake(fn func()) ServiceOption {
	return func(s *Service) { s.wakeScheduler = fn }
}

// WithNotifierWake is called after notifications become due.
func WithNotifierWake(fn func()) ServiceOption {
	return func(s *Service) { s.wakeNotifier = fn }
}

// NewService constructs the API service.
func NewService(cfg *config.Config, store *queue.Store, blobs blob.Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		store:          store,
		blobs:          blobs,
		logger:         logging.NewComponentLogger(logger, "api"),
		resetTryCount:  cfg.Notifications.ResetTryCountOnRetry,
		notifyTryMax:   cfg.Notifications.TryMax,
		notifyPriority: cfg.Notifications.Priority,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ctx context.Context, events []queue.CompletionEvent) {
	if s.events == nil {
		return
	}
	for _, event := range events {
		s.events.HandleCompletion(ctx, event)
	}
}

func (s *Service) wakeDispatch() {
	if s.wakeScheduler != nil {
		s.wakeScheduler()
	}
}

func (s *Service) wakeNotifications() {
	if s.wakeNotifier != nil {
		s.wakeNotifier()
	}
}

func (s *Service) cancel(keys ...string) int {
	if s.runs == nil || len(keys) == 0 {
		return 0
	}
	return s.runs.Cancel(keys...)
}

// Health reports database and fleet state.
func (s *Service) Health(ctx context.Context) (DatabaseHealth, FleetSummary, error) {
	dbHealth, err := s.store.CheckHealth(ctx)
	out := DatabaseHealth{
		Path:          dbHealth.DBPath,
		SchemaVersion: dbHealth.SchemaVersion,
		Integrity:     dbHealth.IntegrityCheck,
		Error:         dbHealth.Error,
	}
	if err != nil {
		return out, FleetSummary{}, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return out, FleetSummary{}, err
	}
	return out, FromSnapshot(snap), nil
}
