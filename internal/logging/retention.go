package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupDaemonLogs removes rotated daemon logs (anything in logDir named
// *.log or *.log.N) whose modification time is older than retentionDays.
// The active LogFileName is never touched. retentionDays <= 0 keeps everything.
func CleanupDaemonLogs(logger *slog.Logger, logDir string, retentionDays int) {
	if retentionDays <= 0 || strings.TrimSpace(logDir) == "" {
		return
	}
	stale, err := staleLogs(logDir, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		if logger != nil {
			logger.Debug("log retention skipped", String("dir", logDir), Error(err))
		}
		return
	}
	pruned := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		pruned++
	}
	if pruned > 0 && logger != nil {
		logger.Info("old daemon logs pruned",
			Int("count", pruned),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
}

func staleLogs(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == LogFileName || !isLogName(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		stale = append(stale, filepath.Join(dir, name))
	}
	return stale, nil
}

func isLogName(name string) bool {
	if strings.HasSuffix(name, ".log") {
		return true
	}
	_, suffix, ok := strings.Cut(name, ".log.")
	return ok && suffix != ""
}
