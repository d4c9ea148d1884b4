package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const logColumns = "key, level, message, instance_key, worker_key, job_key, notification_key, details_json, created_at"

func scanLog(scanner rowScanner) (*LogEntry, error) {
	var (
		entry                  LogEntry
		level, details         string
		instanceKey, workerKey sql.NullString
		jobKey, notifKey       sql.NullString
		createdRaw             sql.NullString
	)
	if err := scanner.Scan(&entry.Key, &level, &entry.Message, &instanceKey, &workerKey, &jobKey, &notifKey, &details, &createdRaw); err != nil {
		return nil, err
	}
	entry.Level = LogLevel(level)
	entry.InstanceKey = instanceKey.String
	entry.WorkerKey = workerKey.String
	entry.JobKey = jobKey.String
	entry.NotificationKey = notifKey.String
	entry.Details = json.RawMessage(details)
	entry.CreatedAt = parseTime(createdRaw)
	return &entry, nil
}

// AppendLog writes one audit entry outside any other transaction.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) (*LogEntry, error) {
	var out *LogEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertLogTx(ctx, tx, entry); err != nil {
			return err
		}
		var err error
		out, err = scanLog(tx.QueryRowContext(ctx,
			"SELECT "+logColumns+" FROM logs WHERE rowid = last_insert_rowid()"))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendDuplicateCompletionLog records that a completion report for attempt
// was ignored. source names the reporter (executor or api).
func (s *Store) AppendDuplicateCompletionLog(ctx context.Context, jobKey string, attempt int, source string) (*LogEntry, error) {
	details, err := json.Marshal(map[string]any{"attempt": attempt, "source": source})
	if err != nil {
		return nil, fmt.Errorf("encode duplicate completion details: %w", err)
	}
	return s.AppendLog(ctx, LogEntry{
		Level:   LogWarning,
		Message: "duplicate completion ignored",
		JobKey:  jobKey,
		Details: details,
	})
}

func (s *Store) insertLogTx(ctx context.Context, tx *sql.Tx, entry LogEntry) error {
	switch entry.Level {
	case LogInfo, LogWarning, LogError:
	case "":
		entry.Level = LogInfo
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidArgument, entry.Level)
	}
	if entry.Key == "" {
		entry.Key = newKey()
	}
	if len(entry.Details) > 0 && !json.Valid(entry.Details) {
		return fmt.Errorf("%w: log details must be valid JSON", ErrInvalidArgument)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = s.timestamp()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO logs (key, level, message, instance_key, worker_key, job_key, notification_key, details_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Key, entry.Level, entry.Message,
		nullableString(entry.InstanceKey), nullableString(entry.WorkerKey),
		nullableString(entry.JobKey), nullableString(entry.NotificationKey),
		jsonOrEmpty(entry.Details), formatTime(created),
	); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// ListLogs returns a page of audit entries, newest first.
func (s *Store) ListLogs(ctx context.Context, filter LogFilter, page Page) ([]*LogEntry, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "logs", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+logColumns+" FROM logs"+where.String()+" ORDER BY created_at DESC, rowid DESC"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, entry)
	}
	return out, total, rows.Err()
}

// DeleteLogs removes matching audit entries.
func (s *Store) DeleteLogs(ctx context.Context, filter LogFilter) (int64, error) {
	where := filter.where()
	res, err := s.execWithRetry(ctx, "DELETE FROM logs"+where.String(), where.args...)
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return affected(res), nil
}
