package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const instanceColumns = "key, type, status, specs_json, workers_max, outcome_json, last_heartbeat, created_at, updated_at"

func scanInstance(scanner rowScanner) (*Instance, error) {
	var (
		inst               Instance
		typ, status, specs string
		outcome, heartbeat sql.NullString
		createdRaw, updRaw sql.NullString
	)
	if err := scanner.Scan(&inst.Key, &typ, &status, &specs, &inst.WorkersMax, &outcome, &heartbeat, &createdRaw, &updRaw); err != nil {
		return nil, err
	}
	inst.Type = InstanceType(typ)
	inst.Status = InstanceStatus(status)
	if err := json.Unmarshal([]byte(specs), &inst.Specs); err != nil {
		return nil, fmt.Errorf("decode instance specs: %w", err)
	}
	inst.Outcome = rawJSON(outcome)
	inst.LastHeartbeat = parseTimePtr(heartbeat)
	inst.CreatedAt = parseTime(createdRaw)
	inst.UpdatedAt = parseTime(updRaw)
	return &inst, nil
}

// RegisterInstance creates or refreshes the instance row for key, deriving
// workers_max from specs. Idle slots beyond a reduced bound are removed.
func (s *Store) RegisterInstance(ctx context.Context, key string, typ InstanceType, specs InstanceSpecs) (*Instance, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: instance key is required", ErrInvalidArgument)
	}
	if typ != InstanceMaster && typ != InstanceSlave {
		return nil, fmt.Errorf("%w: instance type %q", ErrInvalidArgument, typ)
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return nil, fmt.Errorf("encode instance specs: %w", err)
	}
	workersMax := WorkersMax(specs)

	var inst *Instance
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.timestamp())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instances (key, type, status, hostname, specs_json, workers_max, last_heartbeat, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(key) DO UPDATE SET
                 type = excluded.type,
                 status = excluded.status,
                 hostname = excluded.hostname,
                 specs_json = excluded.specs_json,
                 workers_max = excluded.workers_max,
                 outcome_json = NULL,
                 last_heartbeat = excluded.last_heartbeat,
                 updated_at = excluded.updated_at`,
			key, typ, InstanceOnline, specs.Hostname, string(specsJSON), workersMax, now, now, now,
		); err != nil {
			return fmt.Errorf("upsert instance: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM workers WHERE instance_key = ? AND job_key IS NULL AND idx >= ?`,
			key, workersMax,
		); err != nil {
			return fmt.Errorf("trim worker slots: %w", err)
		}
		var err error
		inst, err = scanInstance(tx.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE key = ?", key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Heartbeat refreshes last_heartbeat for key. It reports false when the row
// no longer exists so the caller can re-register.
func (s *Store) Heartbeat(ctx context.Context, key string) (bool, error) {
	now := formatTime(s.timestamp())
	res, err := s.execWithRetry(ctx,
		`UPDATE instances SET last_heartbeat = ?, status = ?, updated_at = ? WHERE key = ?`,
		now, InstanceOnline, now, key,
	)
	if err != nil {
		return false, fmt.Errorf("instance heartbeat: %w", err)
	}
	return affected(res) > 0, nil
}

// GetInstance fetches one instance.
func (s *Store) GetInstance(ctx context.Context, key string) (*Instance, error) {
	inst, err := scanInstance(s.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instance %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// ListInstances returns a page of instances and the total matching count.
func (s *Store) ListInstances(ctx context.Context, filter InstanceFilter, page Page) ([]*Instance, int, error) {
	where := filter.where()
	total, err := s.count(ctx, "instances", where)
	if err != nil {
		return nil, 0, err
	}
	limit, limitArgs := page.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+instanceColumns+" FROM instances"+where.String()+" ORDER BY created_at, rowid"+limit,
		append(where.args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inst)
	}
	return out, total, rows.Err()
}

// DeleteInstances removes matching instances and their workers. Jobs running
// on those workers are failed first; the returned events describe them.
func (s *Store) DeleteInstances(ctx context.Context, filter InstanceFilter) (int64, []CompletionEvent, error) {
	var (
		deleted int64
		events  []CompletionEvent
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		where := filter.where()
		keys, err := selectKeys(ctx, tx, "SELECT key FROM instances"+where.String(), where.args...)
		if err != nil {
			return fmt.Errorf("select instances: %w", err)
		}
		if len(keys) == 0 {
			deleted, events = 0, nil
			return nil
		}
		events, err = s.failJobsOnWorkersTx(ctx, tx,
			"SELECT key FROM workers WHERE instance_key IN ("+makePlaceholders(len(keys))+")", stringArgs(keys),
			"instance deleted")
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM instances WHERE key IN ("+makePlaceholders(len(keys))+")", stringArgs(keys)...)
		if err != nil {
			return fmt.Errorf("delete instances: %w", err)
		}
		deleted = affected(res)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return deleted, events, nil
}

// ReclaimStaleInstances marks ONLINE instances whose heartbeat is older than
// cutoff as OFFLINE and fails the jobs bound to their workers.
func (s *Store) ReclaimStaleInstances(ctx context.Context, cutoff time.Time) ([]string, []CompletionEvent, error) {
	var (
		keys   []string
		events []CompletionEvent
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		keys, err = selectKeys(ctx, tx,
			`SELECT key FROM instances WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			InstanceOnline, formatTime(cutoff),
		)
		if err != nil {
			return fmt.Errorf("select stale instances: %w", err)
		}
		if len(keys) == 0 {
			events = nil
			return nil
		}
		events, err = s.failJobsOnWorkersTx(ctx, tx,
			"SELECT key FROM workers WHERE instance_key IN ("+makePlaceholders(len(keys))+")", stringArgs(keys),
			"instance heartbeat expired")
		if err != nil {
			return err
		}
		now := formatTime(s.timestamp())
		args := append([]any{InstanceOffline, string(marshalOutcome("heartbeat expired")), now}, stringArgs(keys)...)
		if _, err := tx.ExecContext(ctx,
			"UPDATE instances SET status = ?, outcome_json = ?, updated_at = ? WHERE key IN ("+makePlaceholders(len(keys))+")",
			args...,
		); err != nil {
			return fmt.Errorf("mark instances offline: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return keys, events, nil
}

// FailOrphanedJobs fails jobs still bound to instanceKey's workers. A daemon
// calls this at startup because executions from a previous process are gone.
func (s *Store) FailOrphanedJobs(ctx context.Context, instanceKey string) ([]CompletionEvent, error) {
	var events []CompletionEvent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		events, err = s.failJobsOnWorkersTx(ctx, tx,
			"SELECT key FROM workers WHERE instance_key = ?", []any{instanceKey},
			"daemon restarted during execution")
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func selectKeys(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) count(ctx context.Context, table string, where *whereBuilder) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table+where.String(), where.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return total, nil
}
