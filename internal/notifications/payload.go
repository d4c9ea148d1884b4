package notifications

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"encodefleet/internal/queue"
)

// Event names carried in Payload.Event.
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Payload is the JSON body delivered for a job completion.
type Payload struct {
	Event       string          `json:"event"`
	JobKey      string          `json:"job_key"`
	Attempt     int             `json:"attempt"`
	Status      queue.JobStatus `json:"status"`
	Success     bool            `json:"success"`
	InstanceKey string          `json:"instance_key,omitempty"`
	WorkerKey   string          `json:"worker_key,omitempty"`
	FinishedAt  time.Time       `json:"finished_at"`
	Outcome     json.RawMessage `json:"outcome,omitempty"`
}

// PayloadFromEvent builds the delivery payload for a completion.
func PayloadFromEvent(event queue.CompletionEvent) Payload {
	p := Payload{
		Event:       EventJobFailed,
		JobKey:      event.JobKey,
		Attempt:     event.Attempt,
		Status:      event.Status,
		Success:     event.Success,
		InstanceKey: event.InstanceKey,
		WorkerKey:   event.WorkerKey,
		FinishedAt:  event.FinishedAt.UTC(),
	}
	if event.Success {
		p.Event = EventJobCompleted
	}
	if len(event.Outcome) > 0 && json.Valid(event.Outcome) {
		p.Outcome = event.Outcome
	}
	return p
}

// summary renders a payload as a short human message for text transports.
func (p Payload) summary() (title, message string, tags []string, priority string) {
	if p.Success {
		title = "encodefleet - Job Completed"
		message = fmt.Sprintf("✅ Job %s completed (attempt %d)", p.JobKey, p.Attempt)
		tags = []string{"encodefleet", "job", "completed"}
		return title, message, tags, ""
	}
	title = "encodefleet - Job Failed"
	var outcome struct {
		Error string `json:"error"`
	}
	if len(p.Outcome) > 0 {
		_ = json.Unmarshal(p.Outcome, &outcome)
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "❌ Job %s failed (attempt %d)", p.JobKey, p.Attempt)
	if msg := strings.TrimSpace(outcome.Error); msg != "" {
		builder.WriteString("\n")
		builder.WriteString(msg)
	}
	return title, builder.String(), []string{"encodefleet", "job", "failed"}, "high"
}
