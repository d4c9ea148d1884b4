package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const workerColumns = "key, instance_key, idx, job_key, status, outcome_json, created_at, updated_at"

func scanWorker(scanner rowScanner) (*Worker, error) {
	var (
		w                  Worker
		jobKey, outcome    sql.NullString
		status             string
		createdRaw, updRaw sql.NullString
	)
	if err := scanner.Scan(&w.Key, &w.InstanceKey, &w.Index, &jobKey, &status, &outcome, &createdRaw, &updRaw); err != nil {
		return nil, err
	}
	w.JobKey = jobKey.String
	w.Status = WorkerStatus(status)
	w.Outcome = rawJSON(outcome)
	w.CreatedAt = parseTime(createdRaw)
	w.UpdatedAt = parseTime(updRaw)
	return &w, nil
}

// ClaimWorkerSlot finds or creates an idle slot on instanceKey below its
// workers_max bound. The slot is not bound; DispatchNext binds it in the same
// transaction that claims it.
func (s *Store) ClaimWorkerSlot(ctx context.Context, instanceKey string) (*Worker, error) {
	var worker *Worker
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		worker, err = s.claimWorkerSlotTx(ctx, tx, instanceKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return worker, nil
}

func (s *Store) claimWorkerSlotTx(ctx context.Context, tx *sql.Tx, instanceKey string) (*Worker, error) {
	workersMax, err := instanceCapacityTx(ctx, tx, instanceKey)
	if err != nil {
		return nil, err
	}

	var busy int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM workers WHERE instance_key = ? AND job_key IS NOT NULL`, instanceKey,
	).Scan(&busy); err != nil {
		return nil, fmt.Errorf("count busy workers: %w", err)
	}
	if busy >= workersMax {
		return nil, ErrCapacityExhausted
	}

	worker, err := scanWorker(tx.QueryRowContext(ctx,
		"SELECT "+workerColumns+` FROM workers
         WHERE instance_key = ? AND job_key IS NULL AND idx < ?
         ORDER BY idx LIMIT 1`,
		instanceKey, workersMax,
	))
	if err == nil {
		return worker, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select idle worker: %w", err)
	}

	index, err := freeSlotIndexTx(ctx, tx, instanceKey, workersMax)
	if err != nil {
		return nil, err
	}
	now := formatTime(s.timestamp())
	key := newKey()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workers (key, instance_key, idx, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key, instanceKey, index, WorkerIdle, now, now,
	); err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}
	return scanWorker(tx.QueryRowContext(ctx, "SELECT "+workerColumns+" FROM workers WHERE key = ?", key))
}

func instanceCapacityTx(ctx context.Context, tx *sql.Tx, instanceKey string) (int, error) {
	var (
		workersMax int
		status     string
	)
	err := tx.QueryRowContext(ctx, `SELECT workers_max, status FROM instances WHERE key = ?`, instanceKey).Scan(&workersMax, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("instance %s: %w", instanceKey, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("load instance capacity: %w", err)
	}
	if InstanceStatus(status) != InstanceOnline {
		return 0, ErrCapacityExhausted
	}
	return workersMax, nil
}

// freeSlotIndexTx returns the lowest index in [0, workersMax) with no worker row.
func freeSlotIndexTx(ctx context.Context, tx *sql.Tx, instanceKey string, workersMax int) (int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT idx FROM workers WHERE instance_key = ? ORDER BY idx`, instanceKey)
	if err != nil {
		return 0, fmt.Errorf("list worker indexes: %w", err)
	}
	defer rows.Close()
	next := 0
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return 0, err
		}
		if idx > next {
			break
		}
		if idx == next {
			next++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if next >= workersMax {
		return 0, ErrCapacityExhausted
	}
	return next, nil
}

// ReleaseWorkerSlot clears a worker's binding. A job still RUNNING on the
// slot is failed so no job is left without a worker; its event is returned.
func (s *Store) ReleaseWorkerSlot(ctx context.Context, workerKey string) (*CompletionEvent, error) {
	var event *CompletionEvent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM workers WHERE key = ?`, workerKey).Scan(&exists); err != nil {
			return fmt.Errorf("load worker: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("worker %s: %w", workerKey, ErrNotFound)
		}
		events, err := s.failJobsOnWorkersTx(ctx, tx, "SELECT ?", []any{workerKey}, "worker released")
		if err != nil {
			return err
		}
		event = nil
		if len(events) > 0 {
			event = &events[0]
		}
		return s.releaseWorkersTx(ctx, tx, []string{workerKey})
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Store) releaseWorkersTx(ctx context.Context, tx *sql.Tx, workerKeys []string) error {
	if len(workerKeys) == 0 {
		return nil
	}
	args := append([]any{WorkerIdle, formatTime(s.timestamp())}, stringArgs(workerKeys)...)
	if _, err := tx.ExecContext(ctx,
		"UPDATE workers SET job_key = NULL, status = ?, updated_at = ? WHERE key IN ("+makePlaceholders(len(workerKeys))+")",
		args...,
	); err != nil {
		return fmt.Errorf("release workers: %w", err)
	}
	return nil
}

// failJobsOnWorkersTx fails every RUNNING job bound to the workers selected by
// workerQuery and releases those workers.
func (s *Store) failJobsOnWorkersTx(ctx context.Context, tx *sql.Tx, workerQuery string, workerArgs []any, reason string) ([]CompletionEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT j.key, j.attempt, j.input_json, j.instance_key, w.key
         FROM workers w JOIN jobs j ON j.key = w.job_key
         WHERE w.key IN (`+workerQuery+`) AND j.status = ?`,
		append(append([]any{}, workerArgs...), JobRunning)...,
	)
	if err != nil {
		return nil, fmt.Errorf("select bound jobs: %w", err)
	}
	type bound struct {
		jobKey, instanceKey, workerKey, input string
		attempt                               int
	}
	var jobs []bound
	for rows.Next() {
		var (
			b           bound
			instanceKey sql.NullString
		)
		if err := rows.Scan(&b.jobKey, &b.attempt, &b.input, &instanceKey, &b.workerKey); err != nil {
			rows.Close()
			return nil, err
		}
		b.instanceKey = instanceKey.String
		jobs = append(jobs, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	now := s.timestamp()
	outcome := marshalOutcome(reason)
	events := make([]CompletionEvent, 0, len(jobs))
	workerKeys := make([]string, 0, len(jobs))
	for _, b := range jobs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, outcome_json = ?, finished_at = ?, updated_at = ? WHERE key = ?`,
			JobFailed, string(outcome), formatTime(now), formatTime(now), b.jobKey,
		); err != nil {
			return nil, fmt.Errorf("fail bound job: %w", err)
		}
		if err := s.insertLogTx(ctx, tx, LogEntry{
			Level:       LogError,
			Message:     "job failed: " + reason,
			InstanceKey: b.instanceKey,
			WorkerKey:   b.workerKey,
			JobKey:      b.jobKey,
		}); err != nil {
			return nil, err
		}
		workerKeys = append(workerKeys, b.workerKey)
		event := CompletionEvent{
			JobKey:      b.jobKey,
			Attempt:     b.attempt,
			Status:      JobFailed,
			Input:       []byte(b.input),
			Outcome:     outcome,
			InstanceKey: b.instanceKey,
			WorkerKey:   b.workerKey,
			FinishedAt:  now,
		}
		if err := s.enqueueCompletionTx(ctx, tx, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := s.releaseWorkersTx(ctx, tx, workerKeys); err != nil {
		return nil, err
	}
	return events, nil
}

// ListWorkers returns a page of workers ordered by instance and slot index.
func (s *Store) ListWorkers(ctx context.Context, filter WorkerFilter, page Page) ([]*Worker, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "workers", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workerColumns+" FROM workers"+where.String()+" ORDER BY instance_key, idx"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []*Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

// DeleteWorkers removes matching workers. Jobs bound to them are failed with
// outcome {"error":"worker deleted"} in the same transaction.
func (s *Store) DeleteWorkers(ctx context.Context, filter WorkerFilter) (int64, []CompletionEvent, error) {
	var (
		deleted int64
		events  []CompletionEvent
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		where := filter.where()
		var err error
		events, err = s.failJobsOnWorkersTx(ctx, tx, "SELECT key FROM workers"+where.String(), where.args, "worker deleted")
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM workers"+where.String(), where.args...)
		if err != nil {
			return fmt.Errorf("delete workers: %w", err)
		}
		deleted = affected(res)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return deleted, events, nil
}
