package queue

import (
	"context"
	"database/sql"
	"encoding/json"
)

// CompletionPlanner maps an accepted completion to the notifications it
// produces. It runs inside the completion transaction and must not call the
// store.
type CompletionPlanner func(CompletionEvent) []NotificationRequest

// SetCompletionPlanner installs p. Completions recorded afterwards enqueue
// their notifications in the transaction that finishes the job, so a crash
// can never leave a finished job without its notifications.
func (s *Store) SetCompletionPlanner(p CompletionPlanner) {
	s.plannerMu.Lock()
	defer s.plannerMu.Unlock()
	s.planner = p
}

func (s *Store) completionPlanner() CompletionPlanner {
	s.plannerMu.RLock()
	defer s.plannerMu.RUnlock()
	return s.planner
}

// enqueueCompletionTx inserts the planned notifications for event and records
// their keys on it. A request the store rejects becomes an audit log entry
// and does not abort the completion.
func (s *Store) enqueueCompletionTx(ctx context.Context, tx *sql.Tx, event *CompletionEvent) error {
	planner := s.completionPlanner()
	if planner == nil {
		return nil
	}
	for _, req := range planner(*event) {
		if err := req.validate(); err != nil {
			details, _ := json.Marshal(map[string]any{"type": req.Type, "error": err.Error()})
			if err := s.insertLogTx(ctx, tx, LogEntry{
				Level:       LogWarning,
				Message:     "notification target rejected",
				InstanceKey: event.InstanceKey,
				WorkerKey:   event.WorkerKey,
				JobKey:      event.JobKey,
				Details:     details,
			}); err != nil {
				return err
			}
			continue
		}
		key, err := s.insertNotificationTx(ctx, tx, req)
		if err != nil {
			return err
		}
		event.Notifications = append(event.Notifications, key)
	}
	return nil
}
