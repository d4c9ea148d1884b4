package api

import (
	"context"

	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// ListInstances returns one page of instances.
func (s *Service) ListInstances(ctx context.Context, filter queue.InstanceFilter, page PageRequest) ([]Instance, *Pagination, error) {
	rows, total, err := s.store.ListInstances(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(rows, FromInstance), NewPagination(page, total), nil
}

// DeleteInstances removes matching instances with their workers. Jobs bound
// to those workers fail and their completions are published.
func (s *Service) DeleteInstances(ctx context.Context, filter queue.InstanceFilter) (DeleteResult, error) {
	if err := requireFilter(len(filter.Keys), len(filter.Types), len(filter.Statuses)); err != nil {
		return DeleteResult{}, err
	}
	deleted, events, err := s.store.DeleteInstances(ctx, filter)
	if err != nil {
		return DeleteResult{}, err
	}
	s.afterFailures(ctx, "instances deleted", deleted, events)
	return DeleteResult{Deleted: deleted}, nil
}

// ListWorkers returns one page of workers.
func (s *Service) ListWorkers(ctx context.Context, filter queue.WorkerFilter, page PageRequest) ([]Worker, *Pagination, error) {
	rows, total, err := s.store.ListWorkers(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(rows, FromWorker), NewPagination(page, total), nil
}

// DeleteWorkers removes matching workers and fails the jobs bound to them.
func (s *Service) DeleteWorkers(ctx context.Context, filter queue.WorkerFilter) (DeleteResult, error) {
	if err := requireFilter(len(filter.Keys), len(filter.InstanceKeys)); err != nil {
		return DeleteResult{}, err
	}
	deleted, events, err := s.store.DeleteWorkers(ctx, filter)
	if err != nil {
		return DeleteResult{}, err
	}
	s.afterFailures(ctx, "workers deleted", deleted, events)
	return DeleteResult{Deleted: deleted}, nil
}

func (s *Service) afterFailures(ctx context.Context, msg string, deleted int64, events []queue.CompletionEvent) {
	if deleted == 0 {
		return
	}
	keys := make([]string, 0, len(events))
	for _, event := range events {
		keys = append(keys, event.JobKey)
	}
	cancelled := s.cancel(keys...)
	s.logger.Info(msg,
		logging.Int64("count", deleted),
		logging.Int("failed_jobs", len(events)),
		logging.Int("cancelled_runs", cancelled),
	)
	s.publish(ctx, events)
}
