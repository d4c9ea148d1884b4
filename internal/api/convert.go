package api

import (
	"encoding/json"
	"time"

	"encodefleet/internal/queue"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// rawOrNil returns nil for empty columns so omitempty applies.
func rawOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// FromJob converts a job row.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		Key:         job.Key,
		Status:      string(job.Status),
		Priority:    job.Priority,
		Attempt:     job.Attempt,
		Input:       rawOrNil(job.Input),
		Outcome:     rawOrNil(job.Outcome),
		InstanceKey: job.InstanceKey,
		WorkerKey:   job.WorkerKey,
		CreatedAt:   formatTime(job.CreatedAt),
		UpdatedAt:   formatTime(job.UpdatedAt),
		StartedAt:   formatTimePtr(job.StartedAt),
		FinishedAt:  formatTimePtr(job.FinishedAt),
	}
}

// FromJobPreview converts the public projection.
func FromJobPreview(p *queue.JobPreview) JobPreview {
	if p == nil {
		return JobPreview{}
	}
	return JobPreview{
		Key:         p.Key,
		Status:      string(p.Status),
		Priority:    p.Priority,
		OutputCount: p.OutputCount,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

// FromInstance converts an instance row.
func FromInstance(inst *queue.Instance) Instance {
	if inst == nil {
		return Instance{}
	}
	return Instance{
		Key:           inst.Key,
		Type:          string(inst.Type),
		Status:        string(inst.Status),
		Specs:         inst.Specs,
		WorkersMax:    inst.WorkersMax,
		Outcome:       rawOrNil(inst.Outcome),
		LastHeartbeat: formatTimePtr(inst.LastHeartbeat),
		CreatedAt:     formatTime(inst.CreatedAt),
		UpdatedAt:     formatTime(inst.UpdatedAt),
	}
}

// FromWorker converts a worker row.
func FromWorker(w *queue.Worker) Worker {
	if w == nil {
		return Worker{}
	}
	return Worker{
		Key:         w.Key,
		InstanceKey: w.InstanceKey,
		Index:       w.Index,
		JobKey:      w.JobKey,
		Status:      string(w.Status),
		Outcome:     rawOrNil(w.Outcome),
		CreatedAt:   formatTime(w.CreatedAt),
		UpdatedAt:   formatTime(w.UpdatedAt),
	}
}

// FromOutput converts an output row.
func FromOutput(o *queue.Output) Output {
	if o == nil {
		return Output{}
	}
	return Output{
		Key:       o.Key,
		JobKey:    o.JobKey,
		Name:      o.Name,
		Status:    string(o.Status),
		Outcome:   rawOrNil(o.Outcome),
		Specs:     rawOrNil(o.Specs),
		BlobKey:   o.BlobKey,
		Error:     o.Error,
		CreatedAt: formatTime(o.CreatedAt),
		UpdatedAt: formatTime(o.UpdatedAt),
	}
}

// FromNotification converts a notification row.
func FromNotification(n *queue.Notification) Notification {
	if n == nil {
		return Notification{}
	}
	return Notification{
		Key:         n.Key,
		Type:        string(n.Type),
		Status:      string(n.Status),
		Priority:    n.Priority,
		JobKey:      n.JobKey,
		InstanceKey: n.InstanceKey,
		WorkerKey:   n.WorkerKey,
		Payload:     rawOrNil(n.Payload),
		Specs:       rawOrNil(n.Specs),
		TryMax:      n.TryMax,
		TryCount:    n.TryCount,
		RetryIn:     n.RetryIn,
		RetryAt:     formatTimePtr(n.RetryAt),
		LastError:   n.LastError,
		CreatedAt:   formatTime(n.CreatedAt),
		UpdatedAt:   formatTime(n.UpdatedAt),
	}
}

// FromLogEntry converts an audit record.
func FromLogEntry(e *queue.LogEntry) LogEntry {
	if e == nil {
		return LogEntry{}
	}
	return LogEntry{
		Key:             e.Key,
		Level:           string(e.Level),
		Message:         e.Message,
		InstanceKey:     e.InstanceKey,
		WorkerKey:       e.WorkerKey,
		JobKey:          e.JobKey,
		NotificationKey: e.NotificationKey,
		Details:         rawOrNil(e.Details),
		CreatedAt:       formatTime(e.CreatedAt),
	}
}

// FromStat converts a stat sample.
func FromStat(s *queue.Stat) Stat {
	if s == nil {
		return Stat{}
	}
	return Stat{
		Key:       s.Key,
		Name:      s.Name,
		Value:     s.Value,
		Labels:    rawOrNil(s.Labels),
		CreatedAt: formatTime(s.CreatedAt),
	}
}

// FromSnapshot converts fleet counts.
func FromSnapshot(snap queue.FleetSnapshot) FleetSummary {
	out := FleetSummary{
		Jobs:          make(map[string]int, len(snap.Jobs)),
		Instances:     make(map[string]int, len(snap.Instances)),
		Notifications: make(map[string]int, len(snap.Notifications)),
		BusyWorkers:   snap.BusyWorkers,
		TotalWorkers:  snap.TotalWorkers,
	}
	for status, n := range snap.Jobs {
		out.Jobs[string(status)] = n
	}
	for status, n := range snap.Instances {
		out.Instances[string(status)] = n
	}
	for status, n := range snap.Notifications {
		out.Notifications[string(status)] = n
	}
	return out
}

func convertAll[T any, D any](rows []*T, fn func(*T) D) []D {
	out := make([]D, 0, len(rows))
	for _, row := range rows {
		out = append(out, fn(row))
	}
	return out
}

// NewSession builds the POST /auth response.
func NewSession(token string, expiresAt time.Time) Session {
	return Session{Token: token, ExpiresAt: formatTime(expiresAt)}
}
