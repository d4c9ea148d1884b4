package api

import (
	"encoding/json"

	"encodefleet/internal/queue"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job is the authorized view of a job.
type Job struct {
	Key         string          `json:"key"`
	Status      string          `json:"status"`
	Priority    int             `json:"priority"`
	Attempt     int             `json:"attempt"`
	Input       json.RawMessage `json:"input,omitempty"`
	Outcome     json.RawMessage `json:"outcome,omitempty"`
	InstanceKey string          `json:"instance_key,omitempty"`
	WorkerKey   string          `json:"worker_key,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	StartedAt   string          `json:"started_at,omitempty"`
	FinishedAt  string          `json:"finished_at,omitempty"`
}

// JobPreview is the public projection of a job.
type JobPreview struct {
	Key         string `json:"key"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	OutputCount int    `json:"output_count"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// JobDeletion reports the rows removed by a job delete.
type JobDeletion struct {
	Deleted              int      `json:"deleted"`
	Keys                 []string `json:"keys"`
	ReleasedWorkers      int64    `json:"released_workers"`
	SkippedNotifications int64    `json:"skipped_notifications"`
	CancelledRuns        int      `json:"cancelled_runs"`
}

// Instance describes a registered host.
type Instance struct {
	Key           string              `json:"key"`
	Type          string              `json:"type"`
	Status        string              `json:"status"`
	Specs         queue.InstanceSpecs `json:"specs"`
	WorkersMax    int                 `json:"workers_max"`
	Outcome       json.RawMessage     `json:"outcome,omitempty"`
	LastHeartbeat string              `json:"last_heartbeat,omitempty"`
	CreatedAt     string              `json:"created_at,omitempty"`
	UpdatedAt     string              `json:"updated_at,omitempty"`
}

// Worker describes one execution slot.
type Worker struct {
	Key         string          `json:"key"`
	InstanceKey string          `json:"instance_key"`
	Index       int             `json:"index"`
	JobKey      string          `json:"job_key,omitempty"`
	Status      string          `json:"status"`
	Outcome     json.RawMessage `json:"outcome,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

// Output describes an artifact produced by a job.
type Output struct {
	Key       string          `json:"key"`
	JobKey    string          `json:"job_key"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Outcome   json.RawMessage `json:"outcome,omitempty"`
	Specs     json.RawMessage `json:"specs,omitempty"`
	BlobKey   string          `json:"blob_key,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// Notification describes a delivery task.
type Notification struct {
	Key         string          `json:"key"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Priority    int             `json:"priority"`
	JobKey      string          `json:"job_key,omitempty"`
	InstanceKey string          `json:"instance_key,omitempty"`
	WorkerKey   string          `json:"worker_key,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Specs       json.RawMessage `json:"specs,omitempty"`
	TryMax      int             `json:"try_max"`
	TryCount    int             `json:"try_count"`
	RetryIn     *int            `json:"retry_in"`
	RetryAt     string          `json:"retry_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

// LogEntry is one audit record.
type LogEntry struct {
	Key             string          `json:"key"`
	Level           string          `json:"level"`
	Message         string          `json:"message"`
	InstanceKey     string          `json:"instance_key,omitempty"`
	WorkerKey       string          `json:"worker_key,omitempty"`
	JobKey          string          `json:"job_key,omitempty"`
	NotificationKey string          `json:"notification_key,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
	CreatedAt       string          `json:"created_at,omitempty"`
}

// Stat is one recorded metric sample.
type Stat struct {
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Value     float64         `json:"value"`
	Labels    json.RawMessage `json:"labels,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// DeleteResult reports how many rows a delete removed.
type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// PurgeResult reports rows removed per table by a purge.
type PurgeResult struct {
	Stats         int64  `json:"stats"`
	Logs          int64  `json:"logs"`
	Notifications int64  `json:"notifications"`
	Outputs       int64  `json:"outputs"`
	Workers       int64  `json:"workers"`
	Jobs          int64  `json:"jobs"`
	Instances     int64  `json:"instances"`
	CancelledRuns int    `json:"cancelled_runs"`
	BlobError     string `json:"blob_error,omitempty"`
}

// Session is returned by POST /auth.
type Session struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Health is returned by GET /health.
type Health struct {
	Status       string         `json:"status"`
	InstanceKey  string         `json:"instance_key"`
	InstanceType string         `json:"instance_type"`
	Running      bool           `json:"running"`
	ActiveJobs   []string       `json:"active_jobs"`
	LastError    string         `json:"last_error,omitempty"`
	Database     DatabaseHealth `json:"database"`
	Fleet        FleetSummary   `json:"fleet"`
}

// DatabaseHealth mirrors queue.DatabaseHealth.
type DatabaseHealth struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	Integrity     bool   `json:"integrity"`
	Error         string `json:"error,omitempty"`
}

// FleetSummary counts rows per status across the fleet.
type FleetSummary struct {
	Jobs          map[string]int `json:"jobs"`
	Instances     map[string]int `json:"instances"`
	Notifications map[string]int `json:"notifications"`
	BusyWorkers   int            `json:"busy_workers"`
	TotalWorkers  int            `json:"total_workers"`
}

// AuthRequest is the body of POST /auth.
type AuthRequest struct {
	Password string `json:"password"`
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	Input    json.RawMessage `json:"input"`
	Priority int             `json:"priority"`
}

// UpdateJobRequest is the body of PUT /jobs. A request with status or
// attempt is a completion report; otherwise priority must be set.
type UpdateJobRequest struct {
	Key      string          `json:"key"`
	Attempt  *int            `json:"attempt,omitempty"`
	Status   string          `json:"status,omitempty"`
	Outcome  json.RawMessage `json:"outcome,omitempty"`
	Priority *int            `json:"priority,omitempty"`
}

// KeysRequest carries the keys of a bulk action.
type KeysRequest struct {
	Keys []string `json:"keys"`
}

// KeyRequest carries a single key.
type KeyRequest struct {
	Key string `json:"key"`
}

// EnqueueNotificationRequest is the body of POST /jobs/notifications.
// TryMax and Priority fall back to the configured defaults when omitted.
type EnqueueNotificationRequest struct {
	Type        string          `json:"type"`
	JobKey      string          `json:"job_key,omitempty"`
	InstanceKey string          `json:"instance_key,omitempty"`
	WorkerKey   string          `json:"worker_key,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Specs       json.RawMessage `json:"specs,omitempty"`
	TryMax      *int            `json:"try_max,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
}
