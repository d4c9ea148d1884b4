package notifications_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"encodefleet/internal/config"
	"encodefleet/internal/notifications"
	"encodefleet/internal/queue"
	"encodefleet/internal/testsupport"
)

func completion(success bool, input string) queue.CompletionEvent {
	status := queue.JobSuccessful
	if !success {
		status = queue.JobFailed
	}
	return queue.CompletionEvent{
		JobKey:      "job-7",
		Attempt:     1,
		Status:      status,
		Success:     success,
		Input:       json.RawMessage(input),
		Outcome:     json.RawMessage(`{}`),
		InstanceKey: "instance-test",
		WorkerKey:   "worker-1",
		FinishedAt:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCompletionConsumerTargets(t *testing.T) {
	jobInput := `{"source":"/in.mkv","outputs":[{"name":"a"}],"notifications":[
		{"type":"WEBHOOK","specs":{"url":"http://hooks.local/job"}},
		{"type":"SMS","specs":{}}]}`

	tests := []struct {
		name      string
		configure func(n *config.Notifications)
		success   bool
		want      []queue.NotificationType
	}{
		{
			name:    "defaults and job targets",
			success: true,
			configure: func(n *config.Notifications) {
				n.WebhookURL = "http://hooks.local/all"
				n.NtfyTopic = "https://ntfy.sh/fleet"
				n.RedisAddr = "127.0.0.1:6379"
			},
			want: []queue.NotificationType{queue.NotificationWebhook, queue.NotificationNtfy, queue.NotificationRedis, queue.NotificationWebhook},
		},
		{
			name:    "redis needs an address",
			success: false,
			configure: func(n *config.Notifications) {
				n.NtfyTopic = "https://ntfy.sh/fleet"
			},
			want: []queue.NotificationType{queue.NotificationNtfy, queue.NotificationWebhook},
		},
		{
			name:    "success notifications disabled",
			success: true,
			configure: func(n *config.Notifications) {
				n.WebhookURL = "http://hooks.local/all"
				n.OnSuccess = false
			},
		},
		{
			name:    "failure still notified when success disabled",
			success: false,
			configure: func(n *config.Notifications) {
				n.OnSuccess = false
			},
			want: []queue.NotificationType{queue.NotificationWebhook},
		},
		{
			name:    "disabled",
			success: false,
			configure: func(n *config.Notifications) {
				n.WebhookURL = "http://hooks.local/all"
				n.Enabled = false
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t)
			tt.configure(&cfg.Notifications)
			consumer := notifications.NewCompletionConsumer(cfg, nil, nil, nil)
			targets := consumer.Targets(completion(tt.success, jobInput))
			if len(targets) != len(tt.want) {
				t.Fatalf("expected %d targets, got %d: %+v", len(tt.want), len(targets), targets)
			}
			for i, target := range targets {
				if target.Type != tt.want[i] {
					t.Fatalf("target %d = %s, want %s", i, target.Type, tt.want[i])
				}
			}
		})
	}
}

func TestCompletionConsumerEnqueuesNotifications(t *testing.T) {
	cfg := newConfig(t)
	cfg.Notifications.WebhookURL = "http://hooks.local/all"
	cfg.Notifications.TryMax = 4
	cfg.Notifications.Priority = 3
	store, _ := newStore(t, cfg)
	ctx := context.Background()

	woke := 0
	consumer := notifications.NewCompletionConsumer(cfg, store, nil, func() { woke++ })

	testsupport.RegisterInstance(t, store, "instance-test", 1)
	job, err := store.CreateJob(ctx, json.RawMessage(`{"source":"/in.mkv","outputs":[{"name":"a"}],
		"notifications":[{"type":"REDIS","specs":{"channel":"job-events"}}]}`), 0)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	dispatch := testsupport.MustDispatch(t, store, "instance-test")
	event, err := store.CompleteJob(ctx, job.Key, dispatch.Job.Attempt, json.RawMessage(`{"error":"encoder exited 1"}`), false)
	if err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	if len(event.Notifications) != 2 {
		t.Fatalf("expected 2 notification keys on the event, got %v", event.Notifications)
	}

	// The rows exist before any consumer callback runs.
	rows, total, err := store.ListNotifications(ctx, queue.NotificationFilter{JobKeys: []string{job.Key}}, queue.Page{})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 notifications, got %d", total)
	}
	if woke != 0 {
		t.Fatalf("dispatcher woken before HandleCompletion: %d", woke)
	}
	consumer.HandleCompletion(ctx, *event)
	if woke != 1 {
		t.Fatalf("expected one wake call, got %d", woke)
	}
	for _, n := range rows {
		if n.Status != queue.NotificationPending || n.TryMax != 4 || n.Priority != 3 || n.RetryAt != nil {
			t.Fatalf("unexpected notification %+v", n)
		}
		if n.InstanceKey != "instance-test" || n.WorkerKey != dispatch.Worker.Key {
			t.Fatalf("expected refs to be copied, got %+v", n)
		}
		var payload notifications.Payload
		if err := json.Unmarshal(n.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Event != notifications.EventJobFailed || payload.JobKey != job.Key {
			t.Fatalf("unexpected payload %+v", payload)
		}
	}
}

func TestCompletionWithoutTargetsDoesNotWake(t *testing.T) {
	cfg := newConfig(t)
	cfg.Notifications.Enabled = false
	store, _ := newStore(t, cfg)

	woke := 0
	consumer := notifications.NewCompletionConsumer(cfg, store, nil, func() { woke++ })
	if got := consumer.Plan(completion(true, `{"source":"/in.mkv"}`)); len(got) != 0 {
		t.Fatalf("expected no requests, got %+v", got)
	}
	consumer.HandleCompletion(context.Background(), completion(true, `{"source":"/in.mkv"}`))
	if woke != 0 {
		t.Fatalf("expected no wake, got %d", woke)
	}
}
