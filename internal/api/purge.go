package api

import (
	"context"

	"encodefleet/internal/logging"
	"encodefleet/internal/metrics"
)

// MessagePurged confirms DELETE /all.
const MessagePurged = "all fleet data purged"

// Purge deletes every fleet row, stops local executions and empties the blob
// root. The audit entry is written after the purge so it survives it.
func (s *Service) Purge(ctx context.Context) (PurgeResult, error) {
	result, err := s.store.PurgeAll(ctx)
	if err != nil {
		return PurgeResult{}, err
	}
	out := PurgeResult{
		Stats:         result.Stats,
		Logs:          result.Logs,
		Notifications: result.Notifications,
		Outputs:       result.Outputs,
		Workers:       result.Workers,
		Jobs:          result.Jobs,
		Instances:     result.Instances,
	}
	if s.runs != nil {
		out.CancelledRuns = s.runs.CancelAll()
	}

	var blobErr error
	if s.blobs != nil {
		if _, blobErr = s.blobs.DeletePrefix(ctx, ""); blobErr != nil {
			out.BlobError = blobErr.Error()
			logging.WarnWithContext(s.logger, "blob purge failed", "blob_cleanup_failed",
				logging.Error(blobErr),
				logging.String(logging.FieldErrorHint, "empty the blob directory manually"),
				logging.String(logging.FieldImpact, "orphaned artifacts remain in blob storage"),
			)
		}
	}
	if _, err := s.store.AppendPurgeLog(context.WithoutCancel(ctx), result, blobErr); err != nil {
		logging.WarnWithContext(s.logger, "append purge log failed", "purge_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "purge is not recorded in the audit log"),
		)
	}
	metrics.PurgesTotal.Inc()
	logging.WarnWithContext(s.logger, "fleet data purged", "fleet_purged",
		logging.Int64("jobs", out.Jobs),
		logging.Int64("instances", out.Instances),
		logging.Int("cancelled_runs", out.CancelledRuns),
		logging.String(logging.FieldErrorHint, "operator requested purge"),
		logging.String(logging.FieldImpact, "all jobs, instances and history removed"),
	)
	return out, nil
}
