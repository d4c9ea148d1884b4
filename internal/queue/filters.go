package queue

import "strings"

// Page bounds a list query. A non-positive Limit returns every row.
type Page struct {
	Limit  int
	Offset int
}

// JobFilter selects jobs; empty fields match everything.
type JobFilter struct {
	Keys     []string
	Statuses []JobStatus
}

// InstanceFilter selects instances.
type InstanceFilter struct {
	Keys     []string
	Types    []InstanceType
	Statuses []InstanceStatus
}

// WorkerFilter selects workers.
type WorkerFilter struct {
	Keys         []string
	InstanceKeys []string
}

// OutputFilter selects outputs.
type OutputFilter struct {
	Keys     []string
	JobKeys  []string
	Statuses []OutputStatus
}

// NotificationFilter selects notifications.
type NotificationFilter struct {
	Keys     []string
	JobKeys  []string
	Types    []NotificationType
	Statuses []NotificationStatus
}

// LogFilter selects audit log entries.
type LogFilter struct {
	Keys    []string
	Levels  []LogLevel
	JobKeys []string
}

// StatFilter selects stat samples.
type StatFilter struct {
	Keys  []string
	Names []string
}

type whereBuilder struct {
	parts []string
	args  []any
}

func (w *whereBuilder) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	w.parts = append(w.parts, column+" IN ("+makePlaceholders(len(values))+")")
	w.args = append(w.args, stringArgs(values)...)
}

func (w *whereBuilder) add(clause string, args ...any) {
	w.parts = append(w.parts, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func (f JobFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("status", toStrings(f.Statuses))
	return w
}

func (f InstanceFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("type", toStrings(f.Types))
	w.in("status", toStrings(f.Statuses))
	return w
}

func (f WorkerFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("instance_key", f.InstanceKeys)
	return w
}

func (f OutputFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("job_key", f.JobKeys)
	w.in("status", toStrings(f.Statuses))
	return w
}

func (f NotificationFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("job_key", f.JobKeys)
	w.in("type", toStrings(f.Types))
	w.in("status", toStrings(f.Statuses))
	return w
}

func (f LogFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("level", toStrings(f.Levels))
	w.in("job_key", f.JobKeys)
	return w
}

func (f StatFilter) where() *whereBuilder {
	w := &whereBuilder{}
	w.in("key", f.Keys)
	w.in("name", f.Names)
	return w
}

func (p Page) clause() (string, []any) {
	if p.Limit <= 0 {
		return "", nil
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return " LIMIT ? OFFSET ?", []any{p.Limit, offset}
}
