package api

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"encodefleet/internal/queue"
)

// listParam collects a query parameter given repeatedly or comma separated.
func listParam(values url.Values, name string) []string {
	var out []string
	for _, raw := range values[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// enumParam reads a list parameter and checks every value against allowed.
// Values are matched case-insensitively and returned upper-cased.
func enumParam[T ~string](values url.Values, name string, allowed ...T) ([]T, error) {
	raw := listParam(values, name)
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(raw))
	for _, v := range raw {
		candidate := T(strings.ToUpper(v))
		if !slices.Contains(allowed, candidate) {
			return nil, Validation(fmt.Sprintf("unknown %s %q", name, v))
		}
		out = append(out, candidate)
	}
	return out, nil
}

// JobFilterFromQuery reads key and status.
func JobFilterFromQuery(values url.Values) (queue.JobFilter, error) {
	statuses, err := enumParam(values, "status",
		queue.JobPending, queue.JobQueued, queue.JobRunning, queue.JobSuccessful, queue.JobFailed)
	if err != nil {
		return queue.JobFilter{}, err
	}
	return queue.JobFilter{Keys: listParam(values, "key"), Statuses: statuses}, nil
}

// InstanceFilterFromQuery reads key, type and status.
func InstanceFilterFromQuery(values url.Values) (queue.InstanceFilter, error) {
	types, err := enumParam(values, "type", queue.InstanceMaster, queue.InstanceSlave)
	if err != nil {
		return queue.InstanceFilter{}, err
	}
	statuses, err := enumParam(values, "status", queue.InstanceOnline, queue.InstanceOffline)
	if err != nil {
		return queue.InstanceFilter{}, err
	}
	return queue.InstanceFilter{Keys: listParam(values, "key"), Types: types, Statuses: statuses}, nil
}

// WorkerFilterFromQuery reads key and instance_key.
func WorkerFilterFromQuery(values url.Values) queue.WorkerFilter {
	return queue.WorkerFilter{Keys: listParam(values, "key"), InstanceKeys: listParam(values, "instance_key")}
}

// OutputFilterFromQuery reads key, job_key and status.
func OutputFilterFromQuery(values url.Values) (queue.OutputFilter, error) {
	statuses, err := enumParam(values, "status", queue.OutputPending, queue.OutputSuccessful, queue.OutputFailed)
	if err != nil {
		return queue.OutputFilter{}, err
	}
	return queue.OutputFilter{Keys: listParam(values, "key"), JobKeys: listParam(values, "job_key"), Statuses: statuses}, nil
}

// NotificationFilterFromQuery reads key, job_key, type and status.
func NotificationFilterFromQuery(values url.Values) (queue.NotificationFilter, error) {
	types, err := enumParam(values, "type", queue.NotificationWebhook, queue.NotificationNtfy, queue.NotificationRedis)
	if err != nil {
		return queue.NotificationFilter{}, err
	}
	statuses, err := enumParam(values, "status",
		queue.NotificationPending, queue.NotificationSuccessful, queue.NotificationSkipped, queue.NotificationFailed)
	if err != nil {
		return queue.NotificationFilter{}, err
	}
	return queue.NotificationFilter{
		Keys:     listParam(values, "key"),
		JobKeys:  listParam(values, "job_key"),
		Types:    types,
		Statuses: statuses,
	}, nil
}

// LogFilterFromQuery reads key, level and job_key.
func LogFilterFromQuery(values url.Values) (queue.LogFilter, error) {
	levels, err := enumParam(values, "level", queue.LogInfo, queue.LogWarning, queue.LogError)
	if err != nil {
		return queue.LogFilter{}, err
	}
	return queue.LogFilter{Keys: listParam(values, "key"), Levels: levels, JobKeys: listParam(values, "job_key")}, nil
}

// StatFilterFromQuery reads key and name.
func StatFilterFromQuery(values url.Values) queue.StatFilter {
	return queue.StatFilter{Keys: listParam(values, "key"), Names: listParam(values, "name")}
}

var errFilterRequired = Validation("at least one filter is required; use DELETE /all to remove everything")

func requireFilter(lists ...int) error {
	for _, n := range lists {
		if n > 0 {
			return nil
		}
	}
	return errFilterRequired
}
