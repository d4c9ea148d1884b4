package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"encodefleet/internal/logging"
	"encodefleet/internal/metrics"
	"encodefleet/internal/queue"
)

// HeartbeatMonitor holds heartbeat timing and reclaims instances whose
// heartbeat went stale.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	events            EventSink
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration, events EventSink) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		events:            events,
		now:               time.Now,
	}
}

// Interval returns how often instances send heartbeats.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.heartbeatInterval
}

// ReclaimStaleInstances marks instances OFFLINE when their heartbeat is older
// than the timeout and fails the jobs bound to their workers.
func (h *HeartbeatMonitor) ReclaimStaleInstances(ctx context.Context) ([]string, error) {
	if h.heartbeatTimeout <= 0 {
		return nil, nil
	}
	cutoff := h.now().Add(-h.heartbeatTimeout)
	keys, events, err := h.store.ReclaimStaleInstances(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		metrics.InstancesReclaimedTotal.Add(float64(len(keys)))
		h.logger.Warn("reclaimed stale instances",
			logging.Int("count", len(keys)),
			logging.Int("failed_jobs", len(events)),
			logging.String(logging.FieldEventType, "instances_reclaimed"),
			logging.String(logging.FieldImpact, "jobs running on these instances were failed"),
		)
	}
	Publish(ctx, h.events, events...)
	return keys, nil
}

// RunReclaimer checks for stale instances every heartbeat interval until ctx
// is cancelled.
func (h *HeartbeatMonitor) RunReclaimer(ctx context.Context) {
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.ReclaimStaleInstances(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					h.logger.Info("daemon shutting down, reclaim cancelled")
					return
				}
				h.logger.Warn("reclaim stale instances failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check fleet database access"),
				)
			}
		}
	}
}
