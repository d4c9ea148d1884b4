package queue

import (
	"encoding/json"
	"time"
)

// InstanceType distinguishes the control-plane host from execution-only hosts.
type InstanceType string

const (
	InstanceMaster InstanceType = "MASTER"
	InstanceSlave  InstanceType = "SLAVE"
)

// InstanceStatus tracks instance liveness.
type InstanceStatus string

const (
	InstanceOnline  InstanceStatus = "ONLINE"
	InstanceOffline InstanceStatus = "OFFLINE"
)

// WorkerStatus reports whether a slot is bound to a job.
type WorkerStatus string

const (
	WorkerIdle WorkerStatus = "IDLE"
	WorkerBusy WorkerStatus = "BUSY"
)

// JobStatus represents the lifecycle of a job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobQueued     JobStatus = "QUEUED"
	JobRunning    JobStatus = "RUNNING"
	JobSuccessful JobStatus = "SUCCESSFUL"
	JobFailed     JobStatus = "FAILED"
)

var jobStatuses = []JobStatus{JobPending, JobQueued, JobRunning, JobSuccessful, JobFailed}

// IsTerminal reports whether the job finished its current attempt.
func (s JobStatus) IsTerminal() bool {
	return s == JobSuccessful || s == JobFailed
}

// OutputStatus represents the lifecycle of a produced artifact.
type OutputStatus string

const (
	OutputPending    OutputStatus = "PENDING"
	OutputSuccessful OutputStatus = "SUCCESSFUL"
	OutputFailed     OutputStatus = "FAILED"
)

// NotificationStatus represents the delivery lifecycle of a notification.
type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "PENDING"
	NotificationSuccessful NotificationStatus = "SUCCESSFUL"
	NotificationSkipped    NotificationStatus = "SKIPPED"
	NotificationFailed     NotificationStatus = "FAILED"
)

var notificationStatuses = []NotificationStatus{
	NotificationPending, NotificationSuccessful, NotificationSkipped, NotificationFailed,
}

// NotificationType names the delivery channel.
type NotificationType string

const (
	NotificationWebhook NotificationType = "WEBHOOK"
	NotificationNtfy    NotificationType = "NTFY"
	NotificationRedis   NotificationType = "REDIS"
)

// Valid reports whether t is a known delivery channel.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationWebhook, NotificationNtfy, NotificationRedis:
		return true
	}
	return false
}

// LogLevel is the severity of an audit log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// InstanceSpecs captures host facts reported at registration.
type InstanceSpecs struct {
	Hostname          string  `json:"hostname"`
	IP                string  `json:"ip,omitempty"`
	CPUCores          int     `json:"cpu_cores"`
	CPUMHz            float64 `json:"cpu_mhz,omitempty"`
	MemoryTotal       uint64  `json:"memory_total,omitempty"`
	MemoryFree        uint64  `json:"memory_free,omitempty"`
	WorkersPerCPUCore int     `json:"workers_per_cpu_core"`
	// WorkersCap is the configured upper bound; <= 0 means uncapped.
	WorkersCap int `json:"workers_cap"`
}

// WorkersMax derives the concurrent slot bound for an instance.
func WorkersMax(specs InstanceSpecs) int {
	cores := specs.CPUCores
	if cores < 1 {
		cores = 1
	}
	perCore := specs.WorkersPerCPUCore
	if perCore < 1 {
		perCore = 1
	}
	limit := cores * perCore
	if specs.WorkersCap > 0 && specs.WorkersCap < limit {
		limit = specs.WorkersCap
	}
	return limit
}

// Instance is a registered worker host.
type Instance struct {
	Key           string
	Type          InstanceType
	Status        InstanceStatus
	Specs         InstanceSpecs
	WorkersMax    int
	Outcome       json.RawMessage
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Worker is one execution slot owned by an instance.
type Worker struct {
	Key         string
	InstanceKey string
	Index       int
	JobKey      string
	Status      WorkerStatus
	Outcome     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Job is a submitted encode request.
type Job struct {
	Key         string
	Status      JobStatus
	Priority    int
	Input       json.RawMessage
	Outcome     json.RawMessage
	WorkerKey   string
	InstanceKey string
	Attempt     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// JobPreview is the restricted projection served without authentication.
type JobPreview struct {
	Key         string
	Status      JobStatus
	Priority    int
	OutputCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Dispatch is the result of binding a job to a worker slot.
type Dispatch struct {
	Job    *Job
	Worker *Worker
}

// CompletionEvent is emitted once per accepted job completion.
type CompletionEvent struct {
	JobKey        string
	Attempt       int
	Status        JobStatus
	Success       bool
	Input         json.RawMessage
	Outcome       json.RawMessage
	InstanceKey   string
	WorkerKey     string
	FinishedAt    time.Time
	Notifications []string // keys enqueued with the completion
}

// Output records one artifact produced by a job.
type Output struct {
	Key       string
	JobKey    string
	Name      string
	Status    OutputStatus
	Outcome   json.RawMessage
	Specs     json.RawMessage
	BlobKey   string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutputRecord describes an artifact to append.
type OutputRecord struct {
	JobKey  string
	Name    string
	Status  OutputStatus
	Outcome json.RawMessage
	Specs   json.RawMessage
	BlobKey string
	Error   string
}

// Notification is a delivery task with retry bookkeeping.
type Notification struct {
	Key         string
	InstanceKey string
	WorkerKey   string
	JobKey      string
	Type        NotificationType
	Priority    int
	Payload     json.RawMessage
	Specs       json.RawMessage
	Status      NotificationStatus
	TryMax      int
	TryCount    int
	RetryIn     *int
	RetryAt     *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NotificationRequest describes a notification to enqueue.
type NotificationRequest struct {
	Type        NotificationType
	InstanceKey string
	WorkerKey   string
	JobKey      string
	Payload     json.RawMessage
	Specs       json.RawMessage
	TryMax      int
	Priority    int
}

// DeliveryResult reports how a delivery outcome was applied.
type DeliveryResult struct {
	// Applied is false when the notification was skipped, retried or deleted
	// after it was claimed; the outcome is then dropped.
	Applied  bool
	Status   NotificationStatus
	TryCount int
	RetryAt  *time.Time
}

// LogEntry is an append-only audit record.
type LogEntry struct {
	Key             string
	Level           LogLevel
	Message         string
	InstanceKey     string
	WorkerKey       string
	JobKey          string
	NotificationKey string
	Details         json.RawMessage
	CreatedAt       time.Time
}

// Stat is one recorded metric sample.
type Stat struct {
	Key       string
	Name      string
	Value     float64
	Labels    json.RawMessage
	CreatedAt time.Time
}

// StatSample is a metric value to record.
type StatSample struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// FleetSnapshot aggregates row counts for stats and health output.
type FleetSnapshot struct {
	Jobs          map[JobStatus]int
	Instances     map[InstanceStatus]int
	Notifications map[NotificationStatus]int
	BusyWorkers   int
	TotalWorkers  int
}

// PurgeResult reports rows removed per table.
type PurgeResult struct {
	Stats         int64
	Logs          int64
	Notifications int64
	Outputs       int64
	Workers       int64
	Jobs          int64
	Instances     int64
}

// JobDeletion reports what DeleteJobs removed so callers can finish side effects.
type JobDeletion struct {
	Keys                 []string
	ReleasedWorkers      int64
	SkippedNotifications int64
}

// DatabaseHealth reports database diagnostics.
type DatabaseHealth struct {
	DBPath         string
	DatabaseExists bool
	SchemaVersion  int
	IntegrityCheck bool
	Error          string
}
