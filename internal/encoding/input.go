package encoding

import (
	"encoding/json"
	"fmt"
	"strings"

	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

// JobInput is the payload submitted with a job.
type JobInput struct {
	Source        string               `json:"source"`
	Outputs       []OutputSpec         `json:"outputs"`
	Notifications []NotificationTarget `json:"notifications,omitempty"`
}

// OutputSpec describes one artifact to produce from the source.
type OutputSpec struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// NotificationTarget is a per-job delivery target added to the configured
// defaults when the job completes.
type NotificationTarget struct {
	Type  queue.NotificationType `json:"type"`
	Specs json.RawMessage        `json:"specs"`
}

// ParseInput decodes and validates a job input payload.
func ParseInput(raw json.RawMessage) (JobInput, error) {
	var input JobInput
	if len(raw) == 0 {
		return input, services.Wrap(services.ErrValidation, "encoding", "parse input", "job input is empty", nil)
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return input, services.Wrap(services.ErrValidation, "encoding", "parse input", "job input is not a valid object", err)
	}
	input.Source = strings.TrimSpace(input.Source)
	if input.Source == "" {
		return input, services.Wrap(services.ErrValidation, "encoding", "parse input", "source is required", nil)
	}
	if len(input.Outputs) == 0 {
		return input, services.Wrap(services.ErrValidation, "encoding", "parse input", "at least one output is required", nil)
	}
	seen := make(map[string]struct{}, len(input.Outputs))
	for i := range input.Outputs {
		name := strings.TrimSpace(input.Outputs[i].Name)
		if name == "" {
			return input, services.Wrap(services.ErrValidation, "encoding", "parse input", fmt.Sprintf("outputs[%d].name is required", i), nil)
		}
		if _, dup := seen[name]; dup {
			return input, services.Wrap(services.ErrValidation, "encoding", "parse input", fmt.Sprintf("duplicate output name %q", name), nil)
		}
		seen[name] = struct{}{}
		input.Outputs[i].Name = name
	}
	for i, target := range input.Notifications {
		if !target.Type.Valid() {
			return input, services.Wrap(services.ErrValidation, "encoding", "parse input", fmt.Sprintf("notifications[%d].type %q is not supported", i, target.Type), nil)
		}
	}
	return input, nil
}

// Targets extracts only the notification targets from a job input. Inputs
// that fail to parse yield no targets.
func Targets(raw json.RawMessage) []NotificationTarget {
	var input struct {
		Notifications []NotificationTarget `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil
	}
	out := input.Notifications[:0]
	for _, target := range input.Notifications {
		if target.Type.Valid() {
			out = append(out, target)
		}
	}
	return out
}
