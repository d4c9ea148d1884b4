package api

import (
	"context"
	"strings"

	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// ListOutputs returns one page of outputs.
func (s *Service) ListOutputs(ctx context.Context, filter queue.OutputFilter, page PageRequest) ([]Output, *Pagination, error) {
	outputs, total, err := s.store.ListOutputs(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(outputs, FromOutput), NewPagination(page, total), nil
}

// DeleteOutputs removes matching outputs and their blobs.
func (s *Service) DeleteOutputs(ctx context.Context, filter queue.OutputFilter) (DeleteResult, error) {
	if err := requireFilter(len(filter.Keys), len(filter.JobKeys), len(filter.Statuses)); err != nil {
		return DeleteResult{}, err
	}
	deleted, err := s.store.DeleteOutputs(ctx, filter)
	if err != nil {
		return DeleteResult{}, err
	}
	for _, out := range deleted {
		if out.BlobKey == "" || s.blobs == nil {
			continue
		}
		if err := s.blobs.Delete(ctx, out.BlobKey); err != nil {
			logging.WarnWithContext(s.logger, "output blob cleanup failed", "blob_cleanup_failed",
				logging.JobKey(out.JobKey),
				logging.String("blob_key", out.BlobKey),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the blob manually"),
				logging.String(logging.FieldImpact, "orphaned artifact remains in blob storage"),
			)
		}
	}
	return DeleteResult{Deleted: int64(len(deleted))}, nil
}

// RetryOutput marks a FAILED output PENDING and requeues its finished job.
func (s *Service) RetryOutput(ctx context.Context, key string) (Output, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Output{}, Validation("key is required")
	}
	out, err := s.store.RetryOutput(ctx, key)
	if err != nil {
		return Output{}, err
	}
	s.wakeDispatch()
	return FromOutput(out), nil
}
