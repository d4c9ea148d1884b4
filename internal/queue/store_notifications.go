package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const notificationColumns = "key, instance_key, worker_key, job_key, type, priority, payload_json, specs_json, status, try_max, try_count, retry_in, retry_at, last_error, created_at, updated_at"

func scanNotification(scanner rowScanner) (*Notification, error) {
	var (
		n                              Notification
		typ, payload, specs, status    string
		instanceKey, workerKey, jobKey sql.NullString
		retryIn                        sql.NullInt64
		retryAt, lastError             sql.NullString
		createdRaw, updRaw             sql.NullString
	)
	if err := scanner.Scan(
		&n.Key, &instanceKey, &workerKey, &jobKey, &typ, &n.Priority, &payload, &specs, &status,
		&n.TryMax, &n.TryCount, &retryIn, &retryAt, &lastError, &createdRaw, &updRaw,
	); err != nil {
		return nil, err
	}
	n.InstanceKey = instanceKey.String
	n.WorkerKey = workerKey.String
	n.JobKey = jobKey.String
	n.Type = NotificationType(typ)
	n.Payload = json.RawMessage(payload)
	n.Specs = json.RawMessage(specs)
	n.Status = NotificationStatus(status)
	if retryIn.Valid {
		v := int(retryIn.Int64)
		n.RetryIn = &v
	}
	n.RetryAt = parseTimePtr(retryAt)
	n.LastError = lastError.String
	n.CreatedAt = parseTime(createdRaw)
	n.UpdatedAt = parseTime(updRaw)
	return &n, nil
}

// EnqueueNotification inserts a PENDING notification with no retry_at, which
// makes it due on the next scan.
func (s *Store) EnqueueNotification(ctx context.Context, req NotificationRequest) (*Notification, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var n *Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.insertNotificationTx(ctx, tx, req)
		if err != nil {
			return err
		}
		n, err = getNotificationTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (req NotificationRequest) validate() error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: notification type %q", ErrInvalidArgument, req.Type)
	}
	if req.TryMax < 1 {
		return fmt.Errorf("%w: try_max must be at least 1", ErrInvalidArgument)
	}
	if (len(req.Payload) > 0 && !json.Valid(req.Payload)) || (len(req.Specs) > 0 && !json.Valid(req.Specs)) {
		return fmt.Errorf("%w: notification payload and specs must be valid JSON", ErrInvalidArgument)
	}
	return nil
}

func (s *Store) insertNotificationTx(ctx context.Context, tx *sql.Tx, req NotificationRequest) (string, error) {
	key := newKey()
	now := formatTime(s.timestamp())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notifications (key, instance_key, worker_key, job_key, type, priority, payload_json, specs_json,
                 status, try_max, try_count, retry_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		key, nullableString(req.InstanceKey), nullableString(req.WorkerKey), nullableString(req.JobKey),
		req.Type, req.Priority, jsonOrEmpty(req.Payload), jsonOrEmpty(req.Specs),
		NotificationPending, req.TryMax, now, now,
	); err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	return key, nil
}

// GetNotification fetches one notification.
func (s *Store) GetNotification(ctx context.Context, key string) (*Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func getNotificationTx(ctx context.Context, tx *sql.Tx, key string) (*Notification, error) {
	n, err := scanNotification(tx.QueryRowContext(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ClaimDueNotifications selects up to limit PENDING notifications whose
// retry_at is unset or has passed and pushes their retry_at forward by lease before any
// delivery is attempted, so concurrent scanners never claim the same attempt.
func (s *Store) ClaimDueNotifications(ctx context.Context, limit int, lease time.Duration) ([]*Notification, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []*Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = claimed[:0]
		now := s.timestamp()
		rows, err := tx.QueryContext(ctx,
			"SELECT "+notificationColumns+` FROM notifications
             WHERE status = ? AND (retry_at IS NULL OR retry_at <= ?)
             ORDER BY priority ASC, created_at ASC, rowid ASC LIMIT ?`,
			NotificationPending, formatTime(now), limit,
		)
		if err != nil {
			return fmt.Errorf("select due notifications: %w", err)
		}
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, n)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		leaseUntil := now.Add(lease)
		for _, n := range claimed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE notifications SET retry_at = ?, updated_at = ? WHERE key = ?`,
				formatTime(leaseUntil), formatTime(now), n.Key,
			); err != nil {
				return fmt.Errorf("lease notification: %w", err)
			}
			n.RetryAt = &leaseUntil
			n.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordDeliverySuccess marks a claimed notification SUCCESSFUL. The write only
// applies while the row is still PENDING at claimedTryCount.
func (s *Store) RecordDeliverySuccess(ctx context.Context, key string, claimedTryCount int) (DeliveryResult, error) {
	var result DeliveryResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE notifications SET status = ?, try_count = MIN(try_count + 1, try_max), retry_in = NULL,
                 retry_at = NULL, last_error = NULL, updated_at = ?
             WHERE key = ? AND status = ? AND try_count = ?`,
			NotificationSuccessful, formatTime(s.timestamp()), key, NotificationPending, claimedTryCount,
		)
		if err != nil {
			return fmt.Errorf("record delivery success: %w", err)
		}
		result = DeliveryResult{Applied: affected(res) == 1}
		if !result.Applied {
			return nil
		}
		n, err := getNotificationTx(ctx, tx, key)
		if err != nil {
			return err
		}
		result.Status = n.Status
		result.TryCount = n.TryCount
		return nil
	})
	return result, err
}

// RecordDeliveryFailure counts a failed attempt. The notification is
// rescheduled after backoff(nextTryCount) or becomes FAILED once try_max
// attempts are spent. Like RecordDeliverySuccess it is conditional on the
// claimed state.
func (s *Store) RecordDeliveryFailure(ctx context.Context, key string, claimedTryCount int, message string, backoff func(tryCount int) time.Duration) (DeliveryResult, error) {
	var result DeliveryResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = DeliveryResult{}
		n, err := getNotificationTx(ctx, tx, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if n.Status != NotificationPending || n.TryCount != claimedTryCount {
			return nil
		}

		now := s.timestamp()
		next := claimedTryCount + 1
		if next >= n.TryMax {
			if next > n.TryMax {
				next = n.TryMax
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE notifications SET status = ?, try_count = ?, retry_in = NULL, retry_at = NULL,
                     last_error = ?, updated_at = ?
                 WHERE key = ? AND status = ? AND try_count = ?`,
				NotificationFailed, next, message, formatTime(now), key, NotificationPending, claimedTryCount,
			); err != nil {
				return fmt.Errorf("record delivery exhausted: %w", err)
			}
			details, _ := json.Marshal(map[string]any{"try_count": next, "try_max": n.TryMax, "error": message})
			if err := s.insertLogTx(ctx, tx, LogEntry{
				Level:           LogError,
				Message:         "notification exhausted",
				InstanceKey:     n.InstanceKey,
				WorkerKey:       n.WorkerKey,
				JobKey:          n.JobKey,
				NotificationKey: key,
				Details:         details,
			}); err != nil {
				return err
			}
			result = DeliveryResult{Applied: true, Status: NotificationFailed, TryCount: next}
			return nil
		}

		var delay time.Duration
		if backoff != nil {
			delay = backoff(next)
		}
		if delay < 0 {
			delay = 0
		}
		retryAt := now.Add(delay)
		retryIn := int(delay / time.Second)
		if _, err := tx.ExecContext(ctx,
			`UPDATE notifications SET try_count = ?, retry_in = ?, retry_at = ?, last_error = ?, updated_at = ?
             WHERE key = ? AND status = ? AND try_count = ?`,
			next, retryIn, formatTime(retryAt), message, formatTime(now), key, NotificationPending, claimedTryCount,
		); err != nil {
			return fmt.Errorf("record delivery failure: %w", err)
		}
		result = DeliveryResult{Applied: true, Status: NotificationPending, TryCount: next, RetryAt: &retryAt}
		return nil
	})
	return result, err
}

// SkipNotifications moves PENDING notifications to SKIPPED. Either every key
// is skipped or none is.
func (s *Store) SkipNotifications(ctx context.Context, keys ...string) ([]*Notification, error) {
	return s.transitionNotifications(ctx, keys, NotificationPending, func(tx *sql.Tx, n *Notification, now string) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE notifications SET status = ?, retry_in = NULL, retry_at = NULL, updated_at = ? WHERE key = ?`,
			NotificationSkipped, now, n.Key,
		)
		return err
	})
}

// RetryNotifications moves FAILED notifications back to PENDING with retry_at
// cleared, so the next scan picks them up.
// resetTryCount restores the full try_max budget; without it try_count is
// kept and the next failed attempt exhausts the notification again.
func (s *Store) RetryNotifications(ctx context.Context, resetTryCount bool, keys ...string) ([]*Notification, error) {
	return s.transitionNotifications(ctx, keys, NotificationFailed, func(tx *sql.Tx, n *Notification, now string) error {
		tryCount := n.TryCount
		if resetTryCount {
			tryCount = 0
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE notifications SET status = ?, try_count = ?, retry_in = NULL, retry_at = NULL, updated_at = ? WHERE key = ?`,
			NotificationPending, tryCount, now, n.Key,
		)
		return err
	})
}

func (s *Store) transitionNotifications(ctx context.Context, keys []string, from NotificationStatus, apply func(*sql.Tx, *Notification, string) error) ([]*Notification, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one notification key is required", ErrInvalidArgument)
	}
	var out []*Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		out = out[:0]
		now := formatTime(s.timestamp())
		for _, key := range keys {
			n, err := getNotificationTx(ctx, tx, key)
			if err != nil {
				return err
			}
			if n.Status != from {
				return fmt.Errorf("notification %s is %s, want %s: %w", key, n.Status, from, ErrInvalidTransition)
			}
			if err := apply(tx, n, now); err != nil {
				return fmt.Errorf("update notification: %w", err)
			}
			n, err = getNotificationTx(ctx, tx, key)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListNotifications returns a page of notifications in delivery order.
func (s *Store) ListNotifications(ctx context.Context, filter NotificationFilter, page Page) ([]*Notification, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "notifications", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications"+where.String()+" ORDER BY priority, created_at, rowid"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// DeleteNotifications removes matching notifications. A delivery already in
// flight for a deleted row has its result dropped.
func (s *Store) DeleteNotifications(ctx context.Context, filter NotificationFilter) (int64, error) {
	where := filter.where()
	res, err := s.execWithRetry(ctx, "DELETE FROM notifications"+where.String(), where.args...)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return affected(res), nil
}
