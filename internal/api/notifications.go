package api

import (
	"context"
	"strings"

	"encodefleet/internal/queue"
)

// ListNotifications returns one page of notifications.
func (s *Service) ListNotifications(ctx context.Context, filter queue.NotificationFilter, page PageRequest) ([]Notification, *Pagination, error) {
	rows, total, err := s.store.ListNotifications(ctx, filter, page.Query())
	if err != nil {
		return nil, nil, err
	}
	return convertAll(rows, FromNotification), NewPagination(page, total), nil
}

// EnqueueNotification adds a PENDING notification that is due immediately.
func (s *Service) EnqueueNotification(ctx context.Context, req EnqueueNotificationRequest) (Notification, error) {
	typ := queue.NotificationType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !typ.Valid() {
		return Notification{}, Validation("type must be one of WEBHOOK, NTFY, REDIS")
	}
	tryMax := s.notifyTryMax
	if req.TryMax != nil {
		tryMax = *req.TryMax
	}
	if tryMax < 1 {
		return Notification{}, Validation("try_max must be at least 1")
	}
	priority := s.notifyPriority
	if req.Priority != nil {
		priority = *req.Priority
	}
	n, err := s.store.EnqueueNotification(ctx, queue.NotificationRequest{
		Type:        typ,
		InstanceKey: strings.TrimSpace(req.InstanceKey),
		WorkerKey:   strings.TrimSpace(req.WorkerKey),
		JobKey:      strings.TrimSpace(req.JobKey),
		Payload:     req.Payload,
		Specs:       req.Specs,
		TryMax:      tryMax,
		Priority:    priority,
	})
	if err != nil {
		return Notification{}, err
	}
	s.wakeNotifications()
	return FromNotification(n), nil
}

// DeleteNotifications removes matching notifications.
func (s *Service) DeleteNotifications(ctx context.Context, filter queue.NotificationFilter) (DeleteResult, error) {
	if err := requireFilter(len(filter.Keys), len(filter.JobKeys), len(filter.Types), len(filter.Statuses)); err != nil {
		return DeleteResult{}, err
	}
	deleted, err := s.store.DeleteNotifications(ctx, filter)
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: deleted}, nil
}

// RetryNotifications moves FAILED notifications back to PENDING.
// try_count is reset when notifications.reset_try_count_on_retry is set.
func (s *Service) RetryNotifications(ctx context.Context, keys []string) ([]Notification, error) {
	keys = cleanKeys(keys)
	if len(keys) == 0 {
		return nil, Validation("keys is required")
	}
	rows, err := s.store.RetryNotifications(ctx, s.resetTryCount, keys...)
	if err != nil {
		return nil, err
	}
	s.wakeNotifications()
	return convertAll(rows, FromNotification), nil
}

// SkipNotifications moves PENDING notifications to SKIPPED.
func (s *Service) SkipNotifications(ctx context.Context, keys []string) ([]Notification, error) {
	keys = cleanKeys(keys)
	if len(keys) == 0 {
		return nil, Validation("keys is required")
	}
	rows, err := s.store.SkipNotifications(ctx, keys...)
	if err != nil {
		return nil, err
	}
	return convertAll(rows, FromNotification), nil
}
