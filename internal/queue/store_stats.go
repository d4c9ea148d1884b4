package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const statColumns = "key, name, value, labels_json, created_at"

func scanStat(scanner rowScanner) (*Stat, error) {
	var (
		stat       Stat
		labels     string
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&stat.Key, &stat.Name, &stat.Value, &labels, &createdRaw); err != nil {
		return nil, err
	}
	stat.Labels = json.RawMessage(labels)
	stat.CreatedAt = parseTime(createdRaw)
	return &stat, nil
}

// RecordStats stores a batch of samples with one shared timestamp.
func (s *Store) RecordStats(ctx context.Context, samples []StatSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.timestamp())
		for _, sample := range samples {
			labels := []byte("{}")
			if len(sample.Labels) > 0 {
				encoded, err := json.Marshal(sample.Labels)
				if err != nil {
					return fmt.Errorf("encode stat labels: %w", err)
				}
				labels = encoded
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stats (key, name, value, labels_json, created_at) VALUES (?, ?, ?, ?, ?)`,
				newKey(), sample.Name, sample.Value, string(labels), now,
			); err != nil {
				return fmt.Errorf("insert stat: %w", err)
			}
		}
		return nil
	})
}

// ListStats returns a page of samples, newest first.
func (s *Store) ListStats(ctx context.Context, filter StatFilter, page Page) ([]*Stat, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "stats", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+statColumns+" FROM stats"+where.String()+" ORDER BY created_at DESC, rowid DESC"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var out []*Stat
	for rows.Next() {
		stat, err := scanStat(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, stat)
	}
	return out, total, rows.Err()
}

// DeleteStats removes matching samples.
func (s *Store) DeleteStats(ctx context.Context, filter StatFilter) (int64, error) {
	where := filter.where()
	res, err := s.execWithRetry(ctx, "DELETE FROM stats"+where.String(), where.args...)
	if err != nil {
		return 0, fmt.Errorf("delete stats: %w", err)
	}
	return affected(res), nil
}

// PruneStats removes samples recorded before cutoff.
func (s *Store) PruneStats(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM stats WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune stats: %w", err)
	}
	return affected(res), nil
}

// Snapshot counts rows per status across the fleet tables.
func (s *Store) Snapshot(ctx context.Context) (FleetSnapshot, error) {
	snap := FleetSnapshot{
		Jobs:          make(map[JobStatus]int),
		Instances:     make(map[InstanceStatus]int),
		Notifications: make(map[NotificationStatus]int),
	}
	for _, status := range jobStatuses {
		snap.Jobs[status] = 0
	}
	for _, status := range notificationStatuses {
		snap.Notifications[status] = 0
	}
	snap.Instances[InstanceOnline] = 0
	snap.Instances[InstanceOffline] = 0

	if err := s.groupCounts(ctx, "jobs", func(status string, n int) { snap.Jobs[JobStatus(status)] = n }); err != nil {
		return snap, err
	}
	if err := s.groupCounts(ctx, "instances", func(status string, n int) { snap.Instances[InstanceStatus(status)] = n }); err != nil {
		return snap, err
	}
	if err := s.groupCounts(ctx, "notifications", func(status string, n int) { snap.Notifications[NotificationStatus(status)] = n }); err != nil {
		return snap, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN job_key IS NOT NULL THEN 1 ELSE 0 END), 0) FROM workers`,
	).Scan(&snap.TotalWorkers, &snap.BusyWorkers); err != nil {
		return snap, fmt.Errorf("count workers: %w", err)
	}
	return snap, nil
}

func (s *Store) groupCounts(ctx context.Context, table string, set func(status string, n int)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM "+table+" GROUP BY status")
	if err != nil {
		return fmt.Errorf("%s stats: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		set(status, count)
	}
	return rows.Err()
}
