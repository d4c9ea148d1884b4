package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"encodefleet/internal/config"
	"encodefleet/internal/logging"
	"encodefleet/internal/metrics"
	"encodefleet/internal/queue"
)

// Dispatcher claims due notifications and delivers them.
type Dispatcher struct {
	store   *queue.Store
	senders Senders
	backoff Backoff
	logger  *slog.Logger

	pollInterval   time.Duration
	lease          time.Duration
	requestTimeout time.Duration
	batchSize      int

	wake chan struct{}
}

// NewDispatcher constructs a dispatcher from the [notifications] settings.
func NewDispatcher(cfg *config.Config, store *queue.Store, senders Senders, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	n := cfg.Notifications
	return &Dispatcher{
		store:          store,
		senders:        senders,
		backoff:        NewBackoff(n),
		logger:         logging.NewComponentLogger(logger, "notifications"),
		pollInterval:   time.Duration(n.PollInterval) * time.Second,
		lease:          time.Duration(n.ClaimLease) * time.Second,
		requestTimeout: time.Duration(n.RequestTimeout) * time.Second,
		batchSize:      n.BatchSize,
		wake:           make(chan struct{}, 1),
	}
}

// Wake triggers a scan without waiting for the poll interval.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run scans for due notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.pollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(d.logger, "notification scan failed", "notification_scan_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check fleet database access"),
				logging.String(logging.FieldImpact, "notifications are delayed until the next scan"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// RunOnce claims one batch and delivers it concurrently. It returns the
// number of notifications claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	claimed, err := d.store.ClaimDueNotifications(ctx, d.batchSize, d.lease)
	if err != nil {
		return 0, fmt.Errorf("claim notifications: %w", err)
	}
	var wg sync.WaitGroup
	for _, n := range claimed {
		wg.Add(1)
		go func(n *queue.Notification) {
			defer wg.Done()
			d.deliver(ctx, n)
		}(n)
	}
	wg.Wait()
	return len(claimed), nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *queue.Notification) {
	logger := d.logger.With(
		logging.NotificationKey(n.Key),
		logging.String("type", string(n.Type)),
	)
	if n.JobKey != "" {
		logger = logger.With(logging.JobKey(n.JobKey))
	}

	err := d.send(ctx, n)
	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt; the lease expires and it is retried.
		logger.Info("notification delivery interrupted by shutdown")
		return
	}

	recordCtx := context.WithoutCancel(ctx)
	var result queue.DeliveryResult
	var recordErr error
	if err == nil {
		result, recordErr = d.store.RecordDeliverySuccess(recordCtx, n.Key, n.TryCount)
	} else {
		result, recordErr = d.store.RecordDeliveryFailure(recordCtx, n.Key, n.TryCount, err.Error(), d.backoff.Delay)
	}
	if recordErr != nil {
		logging.ErrorWithContext(logger, "record notification result failed", "notification_record_failed",
			logging.Error(recordErr),
			logging.String(logging.FieldErrorHint, "check fleet database access"),
		)
		return
	}

	outcome := deliveryOutcome(err, result)
	metrics.NotificationDeliveriesTotal.WithLabelValues(string(n.Type), outcome).Inc()
	switch outcome {
	case "success":
		logger.Info("notification delivered", logging.Int("try_count", result.TryCount))
	case "dropped":
		logger.Info("notification result dropped; row changed after claim")
	case "failed":
		logging.ErrorWithContext(logger, "notification exhausted", "notification_exhausted",
			logging.Error(err),
			logging.Int("try_count", result.TryCount),
			logging.String(logging.FieldErrorHint, "check the target and retry the notification"),
		)
	default:
		attrs := []logging.Attr{
			logging.Error(err),
			logging.Int("try_count", result.TryCount),
			logging.String(logging.FieldErrorHint, "check the notification target"),
			logging.String(logging.FieldImpact, "delivery will be retried"),
		}
		if result.RetryAt != nil {
			attrs = append(attrs, logging.String("retry_at", result.RetryAt.Format(time.RFC3339)))
		}
		logging.WarnWithContext(logger, "notification delivery failed", "notification_retry", attrs...)
	}
}

func (d *Dispatcher) send(ctx context.Context, n *queue.Notification) error {
	sender, ok := d.senders[n.Type]
	if !ok || sender == nil {
		return fmt.Errorf("no transport configured for %s notifications", n.Type)
	}
	timeout := d.requestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := sender.Send(sendCtx, n)
	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("delivery timed out after %s: %w", timeout, err)
	}
	return err
}

func deliveryOutcome(err error, result queue.DeliveryResult) string {
	switch {
	case !result.Applied:
		return "dropped"
	case err == nil:
		return "success"
	case result.Status == queue.NotificationFailed:
		return "failed"
	default:
		return "retry"
	}
}
