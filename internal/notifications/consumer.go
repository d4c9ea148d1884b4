package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"encodefleet/internal/config"
	"encodefleet/internal/encoding"
	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// CompletionConsumer enqueues notifications for accepted job completions.
type CompletionConsumer struct {
	cfg    config.Notifications
	logger *slog.Logger
	notify func()
}

// NewCompletionConsumer builds a consumer and installs its Plan as store's
// completion planner. notify, when non-nil, runs after a completion that
// enqueued at least one notification.
func NewCompletionConsumer(cfg *config.Config, store *queue.Store, logger *slog.Logger, notify func()) *CompletionConsumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &CompletionConsumer{
		cfg:    cfg.Notifications,
		logger: logging.NewComponentLogger(logger, "notifications"),
		notify: notify,
	}
	if store != nil {
		store.SetCompletionPlanner(c.Plan)
	}
	return c
}

// Targets returns the delivery targets for event: configured defaults first,
// then the targets listed in the job input.
func (c *CompletionConsumer) Targets(event queue.CompletionEvent) []encoding.NotificationTarget {
	if !c.cfg.Enabled {
		return nil
	}
	if event.Success && !c.cfg.OnSuccess {
		return nil
	}
	if !event.Success && !c.cfg.OnFailure {
		return nil
	}
	var targets []encoding.NotificationTarget
	if c.cfg.WebhookURL != "" {
		targets = append(targets, target(queue.NotificationWebhook, map[string]string{"url": c.cfg.WebhookURL}))
	}
	if c.cfg.NtfyTopic != "" {
		targets = append(targets, target(queue.NotificationNtfy, map[string]string{"topic": c.cfg.NtfyTopic}))
	}
	if c.cfg.RedisAddr != "" && c.cfg.RedisChannel != "" {
		targets = append(targets, target(queue.NotificationRedis, map[string]string{"channel": c.cfg.RedisChannel}))
	}
	return append(targets, encoding.Targets(event.Input)...)
}

func target(typ queue.NotificationType, specs map[string]string) encoding.NotificationTarget {
	raw, _ := json.Marshal(specs)
	return encoding.NotificationTarget{Type: typ, Specs: raw}
}

// Plan builds one notification request per target. The store runs it inside
// the completion transaction.
func (c *CompletionConsumer) Plan(event queue.CompletionEvent) []queue.NotificationRequest {
	targets := c.Targets(event)
	if len(targets) == 0 {
		return nil
	}
	payload, err := json.Marshal(PayloadFromEvent(event))
	if err != nil {
		logging.ErrorWithContext(c.logger, "encode notification payload failed", "notification_encode_failed",
			logging.JobKey(event.JobKey),
			logging.Error(err),
		)
		return nil
	}
	requests := make([]queue.NotificationRequest, 0, len(targets))
	for _, t := range targets {
		requests = append(requests, queue.NotificationRequest{
			Type:        t.Type,
			InstanceKey: event.InstanceKey,
			WorkerKey:   event.WorkerKey,
			JobKey:      event.JobKey,
			Payload:     payload,
			Specs:       t.Specs,
			TryMax:      c.cfg.TryMax,
			Priority:    c.cfg.Priority,
		})
	}
	return requests
}

// HandleCompletion runs after a completion commits. Its notifications are
// already stored; the dispatcher is woken so they go out without waiting for
// the next scan.
func (c *CompletionConsumer) HandleCompletion(_ context.Context, event queue.CompletionEvent) {
	if len(event.Notifications) == 0 {
		return
	}
	c.logger.Debug("completion notifications enqueued",
		logging.JobKey(event.JobKey),
		logging.Int("count", len(event.Notifications)),
	)
	if c.notify != nil {
		c.notify()
	}
}
