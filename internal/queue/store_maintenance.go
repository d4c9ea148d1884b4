package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// purgeOrder lists tables leaf-first so no row is observed with a dangling
// reference while the purge transaction runs.
var purgeOrder = []string{"stats", "logs", "notifications", "outputs", "workers", "jobs", "instances"}

// PurgeAll deletes every fleet row in one transaction. The audit entry that
// describes the purge is written afterwards with AppendPurgeLog so it survives.
func (s *Store) PurgeAll(ctx context.Context) (PurgeResult, error) {
	var result PurgeResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = PurgeResult{}
		counts := make(map[string]int64, len(purgeOrder))
		for _, table := range purgeOrder {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+table)
			if err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
			counts[table] = affected(res)
		}
		result = PurgeResult{
			Stats:         counts["stats"],
			Logs:          counts["logs"],
			Notifications: counts["notifications"],
			Outputs:       counts["outputs"],
			Workers:       counts["workers"],
			Jobs:          counts["jobs"],
			Instances:     counts["instances"],
		}
		return nil
	})
	return result, err
}

// AppendPurgeLog writes the WARNING entry summarizing a completed purge.
func (s *Store) AppendPurgeLog(ctx context.Context, result PurgeResult, blobErr error) (*LogEntry, error) {
	details := map[string]any{
		"stats":         result.Stats,
		"logs":          result.Logs,
		"notifications": result.Notifications,
		"outputs":       result.Outputs,
		"workers":       result.Workers,
		"jobs":          result.Jobs,
		"instances":     result.Instances,
	}
	if blobErr != nil {
		details["blob_error"] = blobErr.Error()
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode purge details: %w", err)
	}
	return s.AppendLog(ctx, LogEntry{Level: LogWarning, Message: "all fleet data purged", Details: encoded})
}

// CheckHealth returns diagnostic information about the fleet database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("fleet database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat fleet database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("fleet database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("fleet database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping fleet database: %w", err)
	}

	version, err := s.userVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
