package api

import (
	"context"
	"errors"
	"strings"

	"encodefleet/internal/blob"
	"encodefleet/internal/encoding"
	"encodefleet/internal/logging"
	"encodefleet/internal/metrics"
	"encodefleet/internal/queue"
)

// Messages returned alongside job writes.
const (
	MessageDuplicateCompletion = "duplicate completion ignored"
	MessageCompletionRecorded  = "completion recorded"
	MessagePriorityUpdated     = "priority updated"
)

// ListJobs returns one page of jobs.
func (s *Service) ListJobs(ctx context.Context, filter queue.JobFilter, page PageRequest) ([]Job, *Pagination, error) {
	jobs, total, err := s.store.ListJobs(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(jobs, FromJob), NewPagination(page, total), nil
}

// CreateJob validates the input and inserts a PENDING job.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (Job, error) {
	if _, err := encoding.ParseInput(req.Input); err != nil {
		return Job{}, err
	}
	job, err := s.store.CreateJob(ctx, req.Input, req.Priority)
	if err != nil {
		return Job{}, err
	}
	metrics.JobsCreatedTotal.Inc()
	s.logger.Info("job created",
		logging.JobKey(job.Key),
		logging.Int("priority", job.Priority),
	)
	s.wakeDispatch()
	return FromJob(job), nil
}

// UpdateJob applies a completion report or a priority change.
func (s *Service) UpdateJob(ctx context.Context, req UpdateJobRequest) (Job, string, error) {
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		return Job{}, "", Validation("key is required")
	}
	if req.Attempt != nil || req.Status != "" {
		return s.reportCompletion(ctx, req)
	}
	if req.Priority == nil {
		return Job{}, "", Validation("either a completion (attempt, status) or priority is required")
	}
	job, err := s.store.UpdateJobPriority(ctx, req.Key, *req.Priority)
	if err != nil {
		return Job{}, "", err
	}
	return FromJob(job), MessagePriorityUpdated, nil
}

func (s *Service) reportCompletion(ctx context.Context, req UpdateJobRequest) (Job, string, error) {
	if req.Attempt == nil || *req.Attempt < 1 {
		return Job{}, "", Validation("attempt must be a positive integer")
	}
	var success bool
	switch queue.JobStatus(strings.ToUpper(strings.TrimSpace(req.Status))) {
	case queue.JobSuccessful:
		success = true
	case queue.JobFailed:
	default:
		return Job{}, "", Validation("status must be SUCCESSFUL or FAILED")
	}

	logger := s.logger.With(
		logging.JobKey(req.Key),
		logging.Int("attempt", *req.Attempt),
	)
	event, err := s.store.CompleteJob(ctx, req.Key, *req.Attempt, req.Outcome, success)
	if errors.Is(err, queue.ErrDuplicateCompletion) {
		metrics.DuplicateCompletionsTotal.Inc()
		logging.WarnWithContext(logger, "duplicate completion ignored", "duplicate_completion",
			logging.String("source", "api"),
			logging.String(logging.FieldErrorHint, "the attempt already completed or is no longer running"),
			logging.String(logging.FieldImpact, "report discarded"),
		)
		if _, logErr := s.store.AppendDuplicateCompletionLog(ctx, req.Key, *req.Attempt, "api"); logErr != nil {
			logger.Warn("append duplicate completion log failed", logging.Error(logErr))
		}
		job, getErr := s.store.GetJob(ctx, req.Key)
		if getErr != nil {
			return Job{}, "", getErr
		}
		return FromJob(job), MessageDuplicateCompletion, nil
	}
	if err != nil {
		return Job{}, "", err
	}

	// A local execution of the same attempt would only produce a duplicate.
	s.cancel(req.Key)
	metrics.JobsCompletedTotal.WithLabelValues(string(event.Status)).Inc()
	logger.Info("job completion reported", logging.String("status", string(event.Status)))
	s.publish(ctx, []queue.CompletionEvent{*event})
	s.wakeDispatch()

	job, err := s.store.GetJob(ctx, req.Key)
	if err != nil {
		return Job{}, "", err
	}
	return FromJob(job), MessageCompletionRecorded, nil
}

// DeleteJobs removes matching jobs, cancels their local executions and
// removes their blobs. Blob failures are logged and do not fail the delete.
func (s *Service) DeleteJobs(ctx context.Context, filter queue.JobFilter) (JobDeletion, error) {
	if err := requireFilter(len(filter.Keys), len(filter.Statuses)); err != nil {
		return JobDeletion{}, err
	}
	deletion, err := s.store.DeleteJobs(ctx, filter)
	if err != nil {
		return JobDeletion{}, err
	}
	out := JobDeletion{
		Deleted:              len(deletion.Keys),
		Keys:                 deletion.Keys,
		ReleasedWorkers:      deletion.ReleasedWorkers,
		SkippedNotifications: deletion.SkippedNotifications,
		CancelledRuns:        s.cancel(deletion.Keys...),
	}
	if out.Keys == nil {
		out.Keys = []string{}
	}
	for _, key := range deletion.Keys {
		if s.blobs == nil {
			break
		}
		if _, err := s.blobs.DeletePrefix(ctx, blob.JobPrefix(key)); err != nil {
			logging.WarnWithContext(s.logger, "job blob cleanup failed", "blob_cleanup_failed",
				logging.JobKey(key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the job directory from the blob store manually"),
				logging.String(logging.FieldImpact, "orphaned artifacts remain in blob storage"),
			)
		}
	}
	if out.Deleted > 0 {
		s.logger.Info("jobs deleted",
			logging.Int("count", out.Deleted),
			logging.Int("cancelled_runs", out.CancelledRuns),
		)
	}
	return out, nil
}

// RetryJobs requeues FAILED jobs. Either every key is retried or none is.
func (s *Service) RetryJobs(ctx context.Context, keys []string) ([]Job, error) {
	keys = cleanKeys(keys)
	if len(keys) == 0 {
		return nil, Validation("keys is required")
	}
	jobs, err := s.store.RetryJobs(ctx, keys...)
	if err != nil {
		return nil, err
	}
	s.wakeDispatch()
	return convertAll(jobs, FromJob), nil
}

// PreviewJob returns the public projection of a job.
func (s *Service) PreviewJob(ctx context.Context, key string) (JobPreview, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return JobPreview{}, Validation("key is required")
	}
	preview, err := s.store.GetJobPreview(ctx, key)
	if err != nil {
		return JobPreview{}, err
	}
	return FromJobPreview(preview), nil
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
