package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const jobColumns = "key, status, priority, input_json, outcome_json, worker_key, instance_key, attempt, created_at, updated_at, started_at, finished_at"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job                    Job
		status, input          string
		outcome                sql.NullString
		workerKey, instanceKey sql.NullString
		createdRaw, updRaw     sql.NullString
		startedRaw, finRaw     sql.NullString
	)
	if err := scanner.Scan(
		&job.Key, &status, &job.Priority, &input, &outcome, &workerKey, &instanceKey,
		&job.Attempt, &createdRaw, &updRaw, &startedRaw, &finRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.Input = json.RawMessage(input)
	job.Outcome = rawJSON(outcome)
	job.WorkerKey = workerKey.String
	job.InstanceKey = instanceKey.String
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updRaw)
	job.StartedAt = parseTimePtr(startedRaw)
	job.FinishedAt = parseTimePtr(finRaw)
	return &job, nil
}

// CreateJob inserts a job in PENDING. The next dispatch pass queues it.
func (s *Store) CreateJob(ctx context.Context, input json.RawMessage, priority int) (*Job, error) {
	if len(input) > 0 && !json.Valid(input) {
		return nil, fmt.Errorf("%w: job input must be valid JSON", ErrInvalidArgument)
	}
	key := newKey()
	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.timestamp())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (key, status, priority, input_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			key, JobPending, priority, jsonOrEmpty(input), now, now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if err := s.insertLogTx(ctx, tx, LogEntry{Level: LogInfo, Message: "job created", JobKey: key}); err != nil {
			return err
		}
		var err error
		job, err = getJobTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob fetches one job with its full input and outcome.
func (s *Store) GetJob(ctx context.Context, key string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func getJobTx(ctx context.Context, tx *sql.Tx, key string) (*Job, error) {
	job, err := scanJob(tx.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns a page of jobs in dispatch order and the total matching count.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter, page Page) ([]*Job, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "jobs", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs"+where.String()+" ORDER BY created_at, rowid"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, job)
	}
	return out, total, rows.Err()
}

// GetJobPreview returns the public projection of a job.
func (s *Store) GetJobPreview(ctx context.Context, key string) (*JobPreview, error) {
	var (
		preview            JobPreview
		status             string
		createdRaw, updRaw sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT j.key, j.status, j.priority, j.created_at, j.updated_at,
                (SELECT COUNT(1) FROM outputs o WHERE o.job_key = j.key)
         FROM jobs j WHERE j.key = ?`, key,
	).Scan(&preview.Key, &status, &preview.Priority, &createdRaw, &updRaw, &preview.OutputCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("job preview: %w", err)
	}
	preview.Status = JobStatus(status)
	preview.CreatedAt = parseTime(createdRaw)
	preview.UpdatedAt = parseTime(updRaw)
	return &preview, nil
}

// DispatchNext binds the next QUEUED job to a worker slot on instanceKey.
// Queueing pending jobs, the capacity check, the job pick and both bindings
// commit together or not at all. It returns ErrCapacityExhausted when every
// slot is bound and ErrNoJob when nothing is waiting.
func (s *Store) DispatchNext(ctx context.Context, instanceKey string) (*Dispatch, error) {
	var (
		dispatch *Dispatch
		idle     error
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		idle = nil
		now := formatTime(s.timestamp())
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
			JobQueued, now, JobPending,
		); err != nil {
			return fmt.Errorf("queue pending jobs: %w", err)
		}

		var jobKey string
		err := tx.QueryRowContext(ctx,
			`SELECT key FROM jobs WHERE status = ? ORDER BY priority ASC, created_at ASC, rowid ASC LIMIT 1`,
			JobQueued,
		).Scan(&jobKey)
		if errors.Is(err, sql.ErrNoRows) {
			idle = ErrNoJob
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next job: %w", err)
		}

		// Queueing stays committed when the instance has no free slot.
		worker, err := s.claimWorkerSlotTx(ctx, tx, instanceKey)
		if errors.Is(err, ErrCapacityExhausted) {
			idle = ErrCapacityExhausted
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE workers SET job_key = ?, status = ?, updated_at = ? WHERE key = ? AND job_key IS NULL`,
			jobKey, WorkerBusy, now, worker.Key,
		); err != nil {
			return fmt.Errorf("bind worker: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, worker_key = ?, instance_key = ?, attempt = attempt + 1,
                 outcome_json = NULL, started_at = ?, finished_at = NULL, updated_at = ?
             WHERE key = ? AND status = ?`,
			JobRunning, worker.Key, instanceKey, now, now, jobKey, JobQueued,
		)
		if err != nil {
			return fmt.Errorf("bind job: %w", err)
		}
		if affected(res) != 1 {
			return fmt.Errorf("bind job %s: %w", jobKey, ErrInvalidTransition)
		}

		job, err := getJobTx(ctx, tx, jobKey)
		if err != nil {
			return err
		}
		worker, err = scanWorker(tx.QueryRowContext(ctx, "SELECT "+workerColumns+" FROM workers WHERE key = ?", worker.Key))
		if err != nil {
			return fmt.Errorf("reload worker: %w", err)
		}
		details, _ := json.Marshal(map[string]any{"attempt": job.Attempt, "worker_index": worker.Index})
		if err := s.insertLogTx(ctx, tx, LogEntry{
			Level:       LogInfo,
			Message:     "job dispatched",
			InstanceKey: instanceKey,
			WorkerKey:   worker.Key,
			JobKey:      jobKey,
			Details:     details,
		}); err != nil {
			return err
		}
		dispatch = &Dispatch{Job: job, Worker: worker}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if idle != nil {
		return nil, idle
	}
	return dispatch, nil
}

// CompleteJob records the outcome of a dispatch attempt and frees its worker.
// Only the first completion for a RUNNING attempt is applied; any other call
// returns ErrDuplicateCompletion and changes nothing.
func (s *Store) CompleteJob(ctx context.Context, key string, attempt int, outcome json.RawMessage, success bool) (*CompletionEvent, error) {
	if len(outcome) > 0 && !json.Valid(outcome) {
		return nil, fmt.Errorf("%w: outcome must be valid JSON", ErrInvalidArgument)
	}
	var event *CompletionEvent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := getJobTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if job.Status != JobRunning || job.Attempt != attempt {
			return fmt.Errorf("job %s attempt %d (status %s, current attempt %d): %w",
				key, attempt, job.Status, job.Attempt, ErrDuplicateCompletion)
		}

		status := JobFailed
		level := LogError
		if success {
			status = JobSuccessful
			level = LogInfo
		}
		finished := s.timestamp()
		now := formatTime(finished)
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, outcome_json = ?, finished_at = ?, updated_at = ?
             WHERE key = ? AND status = ? AND attempt = ?`,
			status, nullableJSON(outcome), now, now, key, JobRunning, attempt,
		)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if affected(res) != 1 {
			return fmt.Errorf("job %s attempt %d: %w", key, attempt, ErrDuplicateCompletion)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE workers SET job_key = NULL, status = ?, updated_at = ? WHERE job_key = ?`,
			WorkerIdle, now, key,
		); err != nil {
			return fmt.Errorf("release worker: %w", err)
		}
		details, _ := json.Marshal(map[string]any{"attempt": attempt, "status": status})
		if err := s.insertLogTx(ctx, tx, LogEntry{
			Level:       level,
			Message:     "job completed",
			InstanceKey: job.InstanceKey,
			WorkerKey:   job.WorkerKey,
			JobKey:      key,
			Details:     details,
		}); err != nil {
			return err
		}
		event = &CompletionEvent{
			JobKey:      key,
			Attempt:     attempt,
			Status:      status,
			Success:     success,
			Input:       job.Input,
			Outcome:     outcome,
			InstanceKey: job.InstanceKey,
			WorkerKey:   job.WorkerKey,
			FinishedAt:  finished,
		}
		return s.enqueueCompletionTx(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// RetryJobs moves FAILED jobs back to QUEUED, keeping key and input and
// clearing attempt-scoped fields. Either every key is retried or none is.
func (s *Store) RetryJobs(ctx context.Context, keys ...string) ([]*Job, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one job key is required", ErrInvalidArgument)
	}
	var jobs []*Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		jobs = jobs[:0]
		for _, key := range keys {
			job, err := getJobTx(ctx, tx, key)
			if err != nil {
				return err
			}
			if job.Status != JobFailed {
				return fmt.Errorf("retry job %s from %s: %w", key, job.Status, ErrInvalidTransition)
			}
			if err := s.requeueJobTx(ctx, tx, key); err != nil {
				return err
			}
			if err := s.insertLogTx(ctx, tx, LogEntry{Level: LogInfo, Message: "job retried", JobKey: key}); err != nil {
				return err
			}
			job, err = getJobTx(ctx, tx, key)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// RetryJob is RetryJobs for a single key.
func (s *Store) RetryJob(ctx context.Context, key string) (*Job, error) {
	jobs, err := s.RetryJobs(ctx, key)
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

func (s *Store) requeueJobTx(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, worker_key = NULL, instance_key = NULL, outcome_json = NULL,
             started_at = NULL, finished_at = NULL, updated_at = ?
         WHERE key = ?`,
		JobQueued, formatTime(s.timestamp()), key,
	); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// UpdateJobPriority changes the priority of a job that has not started.
func (s *Store) UpdateJobPriority(ctx context.Context, key string, priority int) (*Job, error) {
	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJobTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Status != JobPending && current.Status != JobQueued {
			return fmt.Errorf("reprioritize job %s in %s: %w", key, current.Status, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET priority = ?, updated_at = ? WHERE key = ?`,
			priority, formatTime(s.timestamp()), key,
		); err != nil {
			return fmt.Errorf("update job priority: %w", err)
		}
		job, err = getJobTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteJobs removes matching jobs. Bound workers are released and the jobs'
// pending notifications are skipped in the same transaction; outputs cascade.
// Callers cancel in-flight executions and remove blobs for the returned keys.
func (s *Store) DeleteJobs(ctx context.Context, filter JobFilter) (*JobDeletion, error) {
	result := &JobDeletion{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		where := filter.where()
		keys, err := selectKeys(ctx, tx, "SELECT key FROM jobs"+where.String(), where.args...)
		if err != nil {
			return fmt.Errorf("select jobs: %w", err)
		}
		*result = JobDeletion{Keys: keys}
		if len(keys) == 0 {
			return nil
		}
		in := "(" + makePlaceholders(len(keys)) + ")"
		now := formatTime(s.timestamp())

		res, err := tx.ExecContext(ctx,
			"UPDATE workers SET job_key = NULL, status = ?, updated_at = ? WHERE job_key IN "+in,
			append([]any{WorkerIdle, now}, stringArgs(keys)...)...,
		)
		if err != nil {
			return fmt.Errorf("release workers: %w", err)
		}
		result.ReleasedWorkers = affected(res)

		res, err = tx.ExecContext(ctx,
			"UPDATE notifications SET status = ?, retry_at = NULL, retry_in = NULL, updated_at = ? WHERE status = ? AND job_key IN "+in,
			append([]any{NotificationSkipped, now, NotificationPending}, stringArgs(keys)...)...,
		)
		if err != nil {
			return fmt.Errorf("skip job notifications: %w", err)
		}
		result.SkippedNotifications = affected(res)

		if _, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE key IN "+in, stringArgs(keys)...); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunningAttempts maps each job RUNNING on instanceKey to its current attempt.
func (s *Store) RunningAttempts(ctx context.Context, instanceKey string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, attempt FROM jobs WHERE status = ? AND instance_key = ?`,
		JobRunning, instanceKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list running attempts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			key     string
			attempt int
		)
		if err := rows.Scan(&key, &attempt); err != nil {
			return nil, err
		}
		out[key] = attempt
	}
	return out, rows.Err()
}
