package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const outputColumns = "key, job_key, name, status, outcome_json, specs_json, blob_key, error, created_at, updated_at"

func scanOutput(scanner rowScanner) (*Output, error) {
	var (
		out                   Output
		status, specs         string
		outcome, blob, errMsg sql.NullString
		createdRaw, updRaw    sql.NullString
	)
	if err := scanner.Scan(&out.Key, &out.JobKey, &out.Name, &status, &outcome, &specs, &blob, &errMsg, &createdRaw, &updRaw); err != nil {
		return nil, err
	}
	out.Status = OutputStatus(status)
	out.Outcome = rawJSON(outcome)
	out.Specs = json.RawMessage(specs)
	out.BlobKey = blob.String
	out.Error = errMsg.String
	out.CreatedAt = parseTime(createdRaw)
	out.UpdatedAt = parseTime(updRaw)
	return &out, nil
}

func validOutputStatus(status OutputStatus) bool {
	switch status {
	case OutputPending, OutputSuccessful, OutputFailed:
		return true
	}
	return false
}

// RecordOutput appends an artifact row for an existing job.
func (s *Store) RecordOutput(ctx context.Context, rec OutputRecord) (*Output, error) {
	if rec.Status == "" {
		rec.Status = OutputSuccessful
	}
	if !validOutputStatus(rec.Status) {
		return nil, fmt.Errorf("%w: output status %q", ErrInvalidArgument, rec.Status)
	}
	if (len(rec.Outcome) > 0 && !json.Valid(rec.Outcome)) || (len(rec.Specs) > 0 && !json.Valid(rec.Specs)) {
		return nil, fmt.Errorf("%w: output outcome and specs must be valid JSON", ErrInvalidArgument)
	}
	key := newKey()
	var out *Output
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE key = ?`, rec.JobKey).Scan(&exists); err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("job %s: %w", rec.JobKey, ErrNotFound)
		}
		now := formatTime(s.timestamp())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outputs (key, job_key, name, status, outcome_json, specs_json, blob_key, error, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key, rec.JobKey, rec.Name, rec.Status, nullableJSON(rec.Outcome), jsonOrEmpty(rec.Specs),
			nullableString(rec.BlobKey), nullableString(rec.Error), now, now,
		); err != nil {
			return fmt.Errorf("insert output: %w", err)
		}
		var err error
		out, err = getOutputTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateOutput rewrites a PENDING output in place with the result of a
// re-production run.
func (s *Store) UpdateOutput(ctx context.Context, key string, rec OutputRecord) (*Output, error) {
	if rec.Status == OutputPending || !validOutputStatus(rec.Status) {
		return nil, fmt.Errorf("%w: output status %q", ErrInvalidArgument, rec.Status)
	}
	var out *Output
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getOutputTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Status != OutputPending {
			return fmt.Errorf("update output %s in %s: %w", key, current.Status, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE outputs SET status = ?, outcome_json = ?, specs_json = ?, blob_key = ?, error = ?, updated_at = ?
             WHERE key = ?`,
			rec.Status, nullableJSON(rec.Outcome), jsonOrEmpty(rec.Specs), nullableString(rec.BlobKey),
			nullableString(rec.Error), formatTime(s.timestamp()), key,
		); err != nil {
			return fmt.Errorf("update output: %w", err)
		}
		out, err = getOutputTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PendingOutputs lists the outputs of jobKey waiting to be re-produced.
func (s *Store) PendingOutputs(ctx context.Context, jobKey string) ([]*Output, error) {
	outputs, _, err := s.ListOutputs(ctx, OutputFilter{JobKeys: []string{jobKey}, Statuses: []OutputStatus{OutputPending}}, Page{})
	return outputs, err
}

// GetOutput fetches one output.
func (s *Store) GetOutput(ctx context.Context, key string) (*Output, error) {
	out, err := scanOutput(s.db.QueryRowContext(ctx, "SELECT "+outputColumns+" FROM outputs WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("output %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get output: %w", err)
	}
	return out, nil
}

func getOutputTx(ctx context.Context, tx *sql.Tx, key string) (*Output, error) {
	out, err := scanOutput(tx.QueryRowContext(ctx, "SELECT "+outputColumns+" FROM outputs WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("output %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get output: %w", err)
	}
	return out, nil
}

// RetryOutput moves a FAILED output back to PENDING and requeues its job when
// the job already finished. A RUNNING job cannot have outputs retried.
func (s *Store) RetryOutput(ctx context.Context, key string) (*Output, error) {
	var out *Output
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getOutputTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Status != OutputFailed {
			return fmt.Errorf("retry output %s from %s: %w", key, current.Status, ErrInvalidTransition)
		}
		job, err := getJobTx(ctx, tx, current.JobKey)
		if err != nil {
			return err
		}
		if job.Status == JobRunning {
			return fmt.Errorf("retry output %s while job %s is running: %w", key, job.Key, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE outputs SET status = ?, error = NULL, updated_at = ? WHERE key = ?`,
			OutputPending, formatTime(s.timestamp()), key,
		); err != nil {
			return fmt.Errorf("reset output: %w", err)
		}
		if job.Status.IsTerminal() {
			if err := s.requeueJobTx(ctx, tx, job.Key); err != nil {
				return err
			}
			if err := s.insertLogTx(ctx, tx, LogEntry{Level: LogInfo, Message: "job requeued for output retry", JobKey: job.Key}); err != nil {
				return err
			}
		}
		out, err = getOutputTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOutputs returns a page of outputs in creation order.
func (s *Store) ListOutputs(ctx context.Context, filter OutputFilter, page Page) ([]*Output, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "outputs", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outputColumns+" FROM outputs"+where.String()+" ORDER BY created_at, rowid"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	var out []*Output
	for rows.Next() {
		o, err := scanOutput(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// DeleteOutputs removes matching outputs and returns them so callers can
// remove their blobs.
func (s *Store) DeleteOutputs(ctx context.Context, filter OutputFilter) ([]*Output, error) {
	var deleted []*Output
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		deleted = deleted[:0]
		where := filter.where()
		rows, err := tx.QueryContext(ctx, "SELECT "+outputColumns+" FROM outputs"+where.String(), where.args...)
		if err != nil {
			return fmt.Errorf("select outputs: %w", err)
		}
		for rows.Next() {
			o, err := scanOutput(rows)
			if err != nil {
				rows.Close()
				return err
			}
			deleted = append(deleted, o)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM outputs"+where.String(), where.args...); err != nil {
			return fmt.Errorf("delete outputs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
