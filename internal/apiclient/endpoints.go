package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"encodefleet/internal/api"
)

// ListJobs returns a page of jobs. Filters: key, status.
func (c *Client) ListJobs(ctx context.Context, opts ListOptions) (Page[api.Job], error) {
	return list[api.Job](ctx, c, "/jobs", opts)
}

// CreateJob submits a job.
func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (api.Job, error) {
	return do[api.Job](ctx, c, request{method: http.MethodPost, path: "/jobs", body: req})
}

// UpdateJob reports a completion or changes a priority. The message tells
// accepted completions apart from ignored duplicates.
func (c *Client) UpdateJob(ctx context.Context, req api.UpdateJobRequest) (api.Job, string, error) {
	return doMessage[api.Job](ctx, c, request{method: http.MethodPut, path: "/jobs", body: req})
}

// DeleteJobs deletes the jobs matching filters.
func (c *Client) DeleteJobs(ctx context.Context, filters url.Values) (api.JobDeletion, error) {
	return do[api.JobDeletion](ctx, c, request{method: http.MethodDelete, path: "/jobs", query: filters})
}

// RetryJobs moves FAILED jobs back to PENDING.
func (c *Client) RetryJobs(ctx context.Context, keys []string) ([]api.Job, error) {
	return do[[]api.Job](ctx, c, request{method: http.MethodPost, path: "/jobs/retry", body: api.KeysRequest{Keys: keys}})
}

// PreviewJob fetches the public projection of a job without logging in.
func (c *Client) PreviewJob(ctx context.Context, key string) (api.JobPreview, error) {
	return do[api.JobPreview](ctx, c, request{
		method: http.MethodGet,
		path:   "/jobs/preview",
		query:  url.Values{"key": {key}},
		public: true,
	})
}

// ListOutputs returns a page of outputs. Filters: key, job_key, status.
func (c *Client) ListOutputs(ctx context.Context, opts ListOptions) (Page[api.Output], error) {
	return list[api.Output](ctx, c, "/jobs/outputs", opts)
}

// DeleteOutputs deletes the outputs matching filters.
func (c *Client) DeleteOutputs(ctx context.Context, filters url.Values) (api.DeleteResult, error) {
	return do[api.DeleteResult](ctx, c, request{method: http.MethodDelete, path: "/jobs/outputs", query: filters})
}

// RetryOutput resets a FAILED output and re-queues its job.
func (c *Client) RetryOutput(ctx context.Context, key string) (api.Output, error) {
	return do[api.Output](ctx, c, request{method: http.MethodPost, path: "/jobs/outputs/retry", body: api.KeyRequest{Key: key}})
}

// ListNotifications returns a page of notifications. Filters: key, job_key, type, status.
func (c *Client) ListNotifications(ctx context.Context, opts ListOptions) (Page[api.Notification], error) {
	return list[api.Notification](ctx, c, "/jobs/notifications", opts)
}

// EnqueueNotification queues a notification by hand.
func (c *Client) EnqueueNotification(ctx context.Context, req api.EnqueueNotificationRequest) (api.Notification, error) {
	return do[api.Notification](ctx, c, request{method: http.MethodPost, path: "/jobs/notifications", body: req})
}

// DeleteNotifications deletes the notifications matching filters.
func (c *Client) DeleteNotifications(ctx context.Context, filters url.Values) (api.DeleteResult, error) {
	return do[api.DeleteResult](ctx, c, request{method: http.MethodDelete, path: "/jobs/notifications", query: filters})
}

// RetryNotifications makes FAILED notifications due again.
func (c *Client) RetryNotifications(ctx context.Context, keys []string) ([]api.Notification, error) {
	return do[[]api.Notification](ctx, c, request{method: http.MethodPost, path: "/jobs/notifications/retry", body: api.KeysRequest{Keys: keys}})
}

// SkipNotifications marks pending notifications SKIPPED.
func (c *Client) SkipNotifications(ctx context.Context, keys []string) ([]api.Notification, error) {
	return do[[]api.Notification](ctx, c, request{method: http.MethodPost, path: "/jobs/notifications/skip", body: api.KeysRequest{Keys: keys}})
}

// ListInstances returns a page of instances. Filters: key, type, status.
func (c *Client) ListInstances(ctx context.Context, opts ListOptions) (Page[api.Instance], error) {
	return list[api.Instance](ctx, c, "/instances", opts)
}

// DeleteInstances deletes the instances matching filters.
func (c *Client) DeleteInstances(ctx context.Context, filters url.Values) (api.DeleteResult, error) {
	return do[api.DeleteResult](ctx, c, request{method: http.MethodDelete, path: "/instances", query: filters})
}

// ListWorkers returns a page of workers. Filters: key, instance_key.
func (c *Client) ListWorkers(ctx context.Context, opts ListOptions) (Page[api.Worker], error) {
	return list[api.Worker](ctx, c, "/instances/workers", opts)
}

// DeleteWorkers deletes the workers matching filters.
func (c *Client) DeleteWorkers(ctx context.Context, filters url.Values) (api.DeleteResult, error) {
	return do[api.DeleteResult](ctx, c, request{method: http.MethodDelete, path: "/instances/workers", query: filters})
}

// ListLogs returns a page of audit log entries. Filters: key, level, job_key.
func (c *Client) ListLogs(ctx context.Context, opts ListOptions) (Page[api.LogEntry], error) {
	return list[api.LogEntry](ctx, c, "/logs", opts)
}

// DeleteLogs deletes the log entries matching filters.
func (c *Client) DeleteLogs(ctx context.Context, filters url.Values) (api.DeleteResult, error) {
	return do[api.DeleteResult](ctx, c, request{method: http.MethodDelete, path: "/logs", query: filters})
}

// ListStats returns a page of stat samples. Filters: key, name.
func (c *Client) ListStats(ctx context.Context, opts ListOptions) (Page[api.Stat], error) {
	return list[api.Stat](ctx, c, "/stats", opts)
}

// DeleteStats deletes the stat samples matching filters.
func (c *Client) DeleteStats(ctx context.Context, filters url.Values) (api.DeleteResult, error) {
	return do[api.DeleteResult](ctx, c, request{method: http.MethodDelete, path: "/stats", query: filters})
}

// Purge deletes every fleet row and blob.
func (c *Client) Purge(ctx context.Context) (api.PurgeResult, error) {
	return do[api.PurgeResult](ctx, c, request{method: http.MethodDelete, path: "/all"})
}

// Health reports daemon liveness without logging in.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	return do[api.Health](ctx, c, request{method: http.MethodGet, path: "/health", public: true})
}
