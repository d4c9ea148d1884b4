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

// StatsRecorder snapshots fleet counts into the stats table and the
// Prometheus gauges.
type StatsRecorder struct {
	store     *queue.Store
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewStatsRecorder constructs a recorder. retentionDays <= 0 keeps samples
// forever.
func NewStatsRecorder(store *queue.Store, logger *slog.Logger, interval time.Duration, retentionDays int) *StatsRecorder {
	return &StatsRecorder{
		store:     store,
		logger:    logger.With(logging.String(logging.FieldComponent, "workflow-stats")),
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Record takes one snapshot, stores it and prunes expired samples.
func (r *StatsRecorder) Record(ctx context.Context) error {
	snap, err := r.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	samples := Samples(snap)
	if err := r.store.RecordStats(ctx, samples); err != nil {
		return err
	}
	updateGauges(snap)

	if r.retention > 0 {
		pruned, err := r.store.PruneStats(ctx, r.now().Add(-r.retention))
		if err != nil {
			return err
		}
		if pruned > 0 {
			r.logger.Debug("pruned stats samples", logging.Int64("count", pruned))
		}
	}
	return nil
}

// Samples flattens a snapshot into named samples.
func Samples(snap queue.FleetSnapshot) []queue.StatSample {
	samples := make([]queue.StatSample, 0, len(snap.Jobs)+len(snap.Instances)+len(snap.Notifications)+2)
	for status, count := range snap.Jobs {
		samples = append(samples, queue.StatSample{Name: "jobs", Value: float64(count), Labels: map[string]string{"status": string(status)}})
	}
	for status, count := range snap.Instances {
		samples = append(samples, queue.StatSample{Name: "instances", Value: float64(count), Labels: map[string]string{"status": string(status)}})
	}
	for status, count := range snap.Notifications {
		samples = append(samples, queue.StatSample{Name: "notifications", Value: float64(count), Labels: map[string]string{"status": string(status)}})
	}
	samples = append(samples,
		queue.StatSample{Name: "workers_busy", Value: float64(snap.BusyWorkers)},
		queue.StatSample{Name: "workers_total", Value: float64(snap.TotalWorkers)},
	)
	return samples
}

func updateGauges(snap queue.FleetSnapshot) {
	for status, count := range snap.Jobs {
		metrics.JobsByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
	for status, count := range snap.Instances {
		metrics.InstancesByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
	for status, count := range snap.Notifications {
		metrics.NotificationsByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
	metrics.WorkersBusy.Set(float64(snap.BusyWorkers))
	metrics.WorkersTotal.Set(float64(snap.TotalWorkers))
}

// Run records a snapshot immediately and then every interval.
func (r *StatsRecorder) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.Record(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Warn("stats snapshot failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "stats_record_failed"),
				logging.String(logging.FieldImpact, "stats history has a gap"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
