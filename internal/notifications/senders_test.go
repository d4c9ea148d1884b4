package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"encodefleet/internal/notifications"
	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

func completionPayload(t *testing.T, success bool) json.RawMessage {
	t.Helper()
	status := queue.JobSuccessful
	outcome := json.RawMessage(`{"outputs":[]}`)
	if !success {
		status = queue.JobFailed
		outcome = json.RawMessage(`{"error":"encoder exited 1"}`)
	}
	raw, err := json.Marshal(notifications.PayloadFromEvent(queue.CompletionEvent{
		JobKey:     "job-1",
		Attempt:    2,
		Status:     status,
		Success:    success,
		Outcome:    outcome,
		FinishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var gotKey, gotType string
	var gotBody notifications.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := notifications.NewWebhookSender(server.Client())
	n := &queue.Notification{
		Key:     "notif-1",
		Type:    queue.NotificationWebhook,
		Payload: completionPayload(t, true),
		Specs:   json.RawMessage(`{"url":"` + server.URL + `"}`),
	}
	if err := sender.Send(context.Background(), n); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotKey != "notif-1" {
		t.Fatalf("expected idempotency key notif-1, got %q", gotKey)
	}
	if gotType != "application/json" {
		t.Fatalf("unexpected content type %q", gotType)
	}
	if gotBody.Event != notifications.EventJobCompleted || gotBody.JobKey != "job-1" || gotBody.Attempt != 2 {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestWebhookSenderRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer server.Close()

	sender := notifications.NewWebhookSender(server.Client())
	err := sender.Send(context.Background(), &queue.Notification{
		Key:   "notif-2",
		Specs: json.RawMessage(`{"url":"` + server.URL + `"}`),
	})
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected 502 error with body, got %v", err)
	}
}

func TestWebhookSenderRequiresURL(t *testing.T) {
	sender := notifications.NewWebhookSender(http.DefaultClient)
	err := sender.Send(context.Background(), &queue.Notification{Key: "n", Specs: json.RawMessage(`{}`)})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNtfySenderFormatsMessage(t *testing.T) {
	tests := []struct {
		name         string
		success      bool
		specs        string
		wantTitle    string
		wantTags     string
		wantPriority string
		wantMessage  string
	}{
		{
			name:        "completed",
			success:     true,
			specs:       `{"topic":"%s"}`,
			wantTitle:   "encodefleet - Job Completed",
			wantTags:    "encodefleet,job,completed",
			wantMessage: "✅ Job job-1 completed (attempt 2)",
		},
		{
			name:         "failed",
			success:      false,
			specs:        `{"topic":"%s"}`,
			wantTitle:    "encodefleet - Job Failed",
			wantTags:     "encodefleet,job,failed",
			wantPriority: "high",
			wantMessage:  "❌ Job job-1 failed (attempt 2)\nencoder exited 1",
		},
		{
			name:         "priority override",
			success:      true,
			specs:        `{"topic":"%s","priority":"urgent"}`,
			wantTitle:    "encodefleet - Job Completed",
			wantTags:     "encodefleet,job,completed",
			wantPriority: "urgent",
			wantMessage:  "✅ Job job-1 completed (attempt 2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var title, tags, priority, body string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				title = r.Header.Get("Title")
				tags = r.Header.Get("Tags")
				priority = r.Header.Get("Priority")
				raw, _ := io.ReadAll(r.Body)
				body = string(raw)
			}))
			defer server.Close()

			sender := notifications.NewNtfySender(server.Client())
			specs := strings.Replace(tt.specs, "%s", server.URL+"/fleet", 1)
			n := &queue.Notification{Key: "n", Payload: completionPayload(t, tt.success), Specs: json.RawMessage(specs)}
			if err := sender.Send(context.Background(), n); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if title != tt.wantTitle {
				t.Fatalf("title = %q, want %q", title, tt.wantTitle)
			}
			if tags != tt.wantTags {
				t.Fatalf("tags = %q, want %q", tags, tt.wantTags)
			}
			if priority != tt.wantPriority {
				t.Fatalf("priority = %q, want %q", priority, tt.wantPriority)
			}
			if body != tt.wantMessage {
				t.Fatalf("message = %q, want %q", body, tt.wantMessage)
			}
		})
	}
}

func TestRedisSenderRequiresClient(t *testing.T) {
	var sender *notifications.RedisSender
	err := sender.Send(context.Background(), &queue.Notification{Key: "n"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRedisSenderReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	sender := notifications.NewRedisSender(client, "fleet.events")
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sender.Send(ctx, &queue.Notification{Key: "n", Payload: json.RawMessage(`{}`)})
	if err == nil || !strings.Contains(err.Error(), "fleet.events") {
		t.Fatalf("expected publish error naming the channel, got %v", err)
	}
}

func TestSendersRegisterRedisOnlyWhenConfigured(t *testing.T) {
	cfg := newConfig(t)
	senders := notifications.NewSenders(cfg)
	if _, ok := senders[queue.NotificationRedis]; ok {
		t.Fatalf("expected no redis sender without redis_addr")
	}
	if _, ok := senders[queue.NotificationWebhook]; !ok {
		t.Fatalf("expected webhook sender")
	}

	cfg.Notifications.RedisAddr = "127.0.0.1:6379"
	senders = notifications.NewSenders(cfg)
	if _, ok := senders[queue.NotificationRedis]; !ok {
		t.Fatalf("expected redis sender when redis_addr is set")
	}
	if err := senders.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
