package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"encodefleet/internal/config"
	"encodefleet/internal/notifications"
	"encodefleet/internal/queue"
	"encodefleet/internal/testsupport"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.BackoffBaseSeconds = 30
	cfg.Notifications.BackoffMaxSeconds = 300
	return cfg
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T, cfg *config.Config) (*queue.Store, *fakeClock) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	return store, clock
}

func enqueue(t *testing.T, store *queue.Store, tryMax int) *queue.Notification {
	t.Helper()
	n, err := store.EnqueueNotification(context.Background(), queue.NotificationRequest{
		Type:    queue.NotificationWebhook,
		JobKey:  "job-1",
		Payload: json.RawMessage(`{"event":"job.completed"}`),
		Specs:   json.RawMessage(`{"url":"http://example.invalid/hook"}`),
		TryMax:  tryMax,
	})
	if err != nil {
		t.Fatalf("EnqueueNotification failed: %v", err)
	}
	return n
}

func mustGet(t *testing.T, store *queue.Store, key string) *queue.Notification {
	t.Helper()
	n, err := store.GetNotification(context.Background(), key)
	if err != nil {
		t.Fatalf("GetNotification failed: %v", err)
	}
	return n
}

func TestDispatcherDeliversDueNotifications(t *testing.T) {
	cfg := newConfig(t)
	store, _ := newStore(t, cfg)
	n := enqueue(t, store, 3)

	var calls atomic.Int32
	senders := notifications.Senders{
		queue.NotificationWebhook: notifications.SenderFunc(func(ctx context.Context, got *queue.Notification) error {
			calls.Add(1)
			if got.Key != n.Key {
				t.Errorf("unexpected notification %s", got.Key)
			}
			return nil
		}),
	}
	dispatcher := notifications.NewDispatcher(cfg, store, senders, nil)

	claimed, err := dispatcher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if claimed != 1 || calls.Load() != 1 {
		t.Fatalf("expected one delivery, claimed=%d calls=%d", claimed, calls.Load())
	}
	got := mustGet(t, store, n.Key)
	if got.Status != queue.NotificationSuccessful || got.TryCount != 1 {
		t.Fatalf("expected SUCCESSFUL with try_count 1, got %s/%d", got.Status, got.TryCount)
	}

	claimed, err = dispatcher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}
	if claimed != 0 {
		t.Fatalf("expected nothing left to claim, got %d", claimed)
	}
}

func TestDispatcherBacksOffThenExhausts(t *testing.T) {
	cfg := newConfig(t)
	store, clock := newStore(t, cfg)
	n := enqueue(t, store, 2)

	senders := notifications.Senders{
		queue.NotificationWebhook: notifications.SenderFunc(func(context.Context, *queue.Notification) error {
			return errors.New("connection refused")
		}),
	}
	dispatcher := notifications.NewDispatcher(cfg, store, senders, nil)
	ctx := context.Background()

	if _, err := dispatcher.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	got := mustGet(t, store, n.Key)
	if got.Status != queue.NotificationPending || got.TryCount != 1 {
		t.Fatalf("expected PENDING with try_count 1, got %s/%d", got.Status, got.TryCount)
	}
	if got.RetryAt == nil || !got.RetryAt.Equal(clock.Now().Add(30*time.Second)) {
		t.Fatalf("expected retry in 30s, got %v", got.RetryAt)
	}
	if got.LastError != "connection refused" {
		t.Fatalf("unexpected last_error %q", got.LastError)
	}

	if claimed, _ := dispatcher.RunOnce(ctx); claimed != 0 {
		t.Fatalf("expected backoff to hold the notification, claimed %d", claimed)
	}

	clock.Advance(31 * time.Second)
	if claimed, _ := dispatcher.RunOnce(ctx); claimed != 1 {
		t.Fatalf("expected retry to be claimed, got %d", claimed)
	}
	got = mustGet(t, store, n.Key)
	if got.Status != queue.NotificationFailed || got.TryCount != 2 {
		t.Fatalf("expected FAILED at try_max, got %s/%d", got.Status, got.TryCount)
	}
	if got.RetryAt != nil {
		t.Fatalf("expected retry_at cleared, got %v", got.RetryAt)
	}

	logs, _, err := store.ListLogs(ctx, queue.LogFilter{}, queue.Page{})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Message == "notification exhausted" && entry.NotificationKey == n.Key {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an exhausted log entry")
	}
}

func TestDispatcherFailsUnknownTransport(t *testing.T) {
	cfg := newConfig(t)
	store, _ := newStore(t, cfg)
	n := enqueue(t, store, 1)

	dispatcher := notifications.NewDispatcher(cfg, store, notifications.Senders{}, nil)
	if _, err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	got := mustGet(t, store, n.Key)
	if got.Status != queue.NotificationFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
}

func TestDispatcherDropsResultForSkippedNotification(t *testing.T) {
	cfg := newConfig(t)
	store, _ := newStore(t, cfg)
	n := enqueue(t, store, 3)

	senders := notifications.Senders{
		queue.NotificationWebhook: notifications.SenderFunc(func(ctx context.Context, got *queue.Notification) error {
			if _, err := store.SkipNotifications(ctx, got.Key); err != nil {
				t.Errorf("SkipNotifications failed: %v", err)
			}
			return nil
		}),
	}
	dispatcher := notifications.NewDispatcher(cfg, store, senders, nil)
	if _, err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	got := mustGet(t, store, n.Key)
	if got.Status != queue.NotificationSkipped {
		t.Fatalf("expected skip to win over the stale success, got %s", got.Status)
	}
}

func TestDispatcherTimesOutSlowTargets(t *testing.T) {
	cfg := newConfig(t)
	cfg.Notifications.RequestTimeout = 1
	store, _ := newStore(t, cfg)
	n := enqueue(t, store, 3)

	senders := notifications.Senders{
		queue.NotificationWebhook: notifications.SenderFunc(func(ctx context.Context, _ *queue.Notification) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}
	dispatcher := notifications.NewDispatcher(cfg, store, senders, nil)
	if _, err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	got := mustGet(t, store, n.Key)
	if got.Status != queue.NotificationPending || got.TryCount != 1 {
		t.Fatalf("expected a counted failed attempt, got %s/%d", got.Status, got.TryCount)
	}
}
