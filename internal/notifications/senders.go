package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"encodefleet/internal/config"
	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

const userAgent = "encodefleet/1.0"

// Sender delivers one notification over a single transport.
type Sender interface {
	Send(ctx context.Context, n *queue.Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n *queue.Notification) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, n *queue.Notification) error {
	return f(ctx, n)
}

// Senders maps notification types to their transport.
type Senders map[queue.NotificationType]Sender

// NewSenders builds the WEBHOOK, NTFY and REDIS transports. REDIS is only
// registered when notifications.redis_addr is set.
func NewSenders(cfg *config.Config) Senders {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	senders := Senders{
		queue.NotificationWebhook: &WebhookSender{client: client},
		queue.NotificationNtfy:    &NtfySender{client: client},
	}
	if cfg.Notifications.RedisAddr != "" {
		senders[queue.NotificationRedis] = NewRedisSender(
			redis.NewClient(&redis.Options{Addr: cfg.Notifications.RedisAddr}),
			cfg.Notifications.RedisChannel,
		)
	}
	return senders
}

// Close releases transports that hold connections.
func (s Senders) Close() error {
	var errs []error
	for _, sender := range s {
		if closer, ok := sender.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

func invalidSpecs(op, msg string, err error) error {
	return services.Wrap(services.ErrValidation, "notifications", op, msg, err)
}

// WebhookSender POSTs the JSON payload to specs.url.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender returns a webhook transport using client.
func NewWebhookSender(client *http.Client) *WebhookSender {
	return &WebhookSender{client: client}
}

// Send posts the payload. Any 2xx status is success.
func (w *WebhookSender) Send(ctx context.Context, n *queue.Notification) error {
	var specs struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(n.Specs, &specs); err != nil || strings.TrimSpace(specs.URL) == "" {
		return invalidSpecs("webhook", "specs.url is required", err)
	}
	body := []byte(n.Payload)
	if len(body) == 0 {
		body = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(specs.URL), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.Key)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError("webhook", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NtfySender posts a plain text summary to an ntfy topic URL in specs.topic.
type NtfySender struct {
	client *http.Client
}

// NewNtfySender returns an ntfy transport using client.
func NewNtfySender(client *http.Client) *NtfySender {
	return &NtfySender{client: client}
}

// Send publishes the summary with Title, Tags and Priority headers.
func (s *NtfySender) Send(ctx context.Context, n *queue.Notification) error {
	var specs struct {
		Topic    string `json:"topic"`
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal(n.Specs, &specs); err != nil || strings.TrimSpace(specs.Topic) == "" {
		return invalidSpecs("ntfy", "specs.topic is required", err)
	}
	var payload Payload
	if len(n.Payload) > 0 {
		if err := json.Unmarshal(n.Payload, &payload); err != nil {
			return invalidSpecs("ntfy", "payload is not a completion payload", err)
		}
	}
	title, message, tags, priority := payload.summary()
	if specs.Priority != "" {
		priority = specs.Priority
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(specs.Topic), strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", title)
	req.Header.Set("Tags", strings.Join(tags, ","))
	if priority != "" && priority != "default" {
		req.Header.Set("Priority", priority)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError("ntfy", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func responseError(transport string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s returned %d: %s", transport, resp.StatusCode, strings.TrimSpace(string(body)))
}

// RedisSender publishes the JSON payload on a Redis channel.
type RedisSender struct {
	client         *redis.Client
	defaultChannel string
}

// NewRedisSender wraps client. defaultChannel is used when specs.channel is
// empty.
func NewRedisSender(client *redis.Client, defaultChannel string) *RedisSender {
	return &RedisSender{client: client, defaultChannel: defaultChannel}
}

// Send issues PUBLISH. Zero subscribers still counts as delivered.
func (r *RedisSender) Send(ctx context.Context, n *queue.Notification) error {
	if r == nil || r.client == nil {
		return services.Wrap(services.ErrConfiguration, "notifications", "redis", "notifications.redis_addr is not configured", nil)
	}
	var specs struct {
		Channel string `json:"channel"`
	}
	if len(n.Specs) > 0 {
		if err := json.Unmarshal(n.Specs, &specs); err != nil {
			return invalidSpecs("redis", "specs must be an object", err)
		}
	}
	channel := strings.TrimSpace(specs.Channel)
	if channel == "" {
		channel = r.defaultChannel
	}
	if channel == "" {
		return invalidSpecs("redis", "specs.channel is required", nil)
	}
	if err := r.client.Publish(ctx, channel, string(n.Payload)).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisSender) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
