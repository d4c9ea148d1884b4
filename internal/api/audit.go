package api

import (
	"context"

	"encodefleet/internal/queue"
)

// ListLogs returns one page of audit entries.
func (s *Service) ListLogs(ctx context.Context, filter queue.LogFilter, page PageRequest) ([]LogEntry, *Pagination, error) {
	rows, total, err := s.store.ListLogs(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(rows, FromLogEntry), NewPagination(page, total), nil
}

// DeleteLogs removes matching audit entries.
func (s *Service) DeleteLogs(ctx context.Context, filter queue.LogFilter) (DeleteResult, error) {
	if err := requireFilter(len(filter.Keys), len(filter.Levels), len(filter.JobKeys)); err != nil {
		return DeleteResult{}, err
	}
	deleted, err := s.store.DeleteLogs(ctx, filter)
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: deleted}, nil
}

// ListStats returns one page of stat samples.
func (s *Service) ListStats(ctx context.Context, filter queue.StatFilter, page PageRequest) ([]Stat, *Pagination, error) {
	rows, total, err := s.store.ListStats(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(rows, FromStat), NewPagination(page, total), nil
}

// DeleteStats removes matching stat samples.
func (s *Service) DeleteStats(ctx context.Context, filter queue.StatFilter) (DeleteResult, error) {
	if err := requireFilter(len(filter.Keys), len(filter.Names)); err != nil {
		return DeleteResult{}, err
	}
	deleted, err := s.store.DeleteStats(ctx, filter)
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: deleted}, nil
}
