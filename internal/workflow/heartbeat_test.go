package workflow

import (
	"context"
	"testing"
	"time"

	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
	"encodefleet/internal/testsupport"
)

func TestReclaimStaleInstancesPublishesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.RegisterInstance(t, store, "stale-host", 1)
	job := testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)
	testsupport.MustDispatch(t, store, "stale-host")

	var published []queue.CompletionEvent
	sink := EventSinkFunc(func(_ context.Context, event queue.CompletionEvent) {
		published = append(published, event)
	})
	monitor := NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Minute, sink)

	keys, err := monitor.ReclaimStaleInstances(ctx)
	if err != nil {
		t.Fatalf("ReclaimStaleInstances failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected fresh instance to survive, reclaimed %v", keys)
	}

	monitor.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	keys, err = monitor.ReclaimStaleInstances(ctx)
	if err != nil {
		t.Fatalf("ReclaimStaleInstances failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "stale-host" {
		t.Fatalf("expected stale-host reclaimed, got %v", keys)
	}
	if len(published) != 1 || published[0].JobKey != job.Key || published[0].Status != queue.JobFailed {
		t.Fatalf("unexpected published events: %#v", published)
	}
	inst, err := store.GetInstance(ctx, "stale-host")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if inst.Status != queue.InstanceOffline {
		t.Fatalf("expected OFFLINE, got %s", inst.Status)
	}
}

func TestStatsRecorderRecordsAndPrunes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return clock })
	testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)

	recorder := NewStatsRecorder(store, logging.NewNop(), time.Minute, 1)
	recorder.now = func() time.Time { return clock }
	if err := recorder.Record(ctx); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	stats, total, err := store.ListStats(ctx, queue.StatFilter{Names: []string{"jobs"}}, queue.Page{})
	if err != nil {
		t.Fatalf("ListStats failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected one jobs sample per status, got %d", total)
	}
	var pending float64 = -1
	for _, stat := range stats {
		if string(stat.Labels) == `{"status":"PENDING"}` {
			pending = stat.Value
		}
	}
	if pending != 1 {
		t.Fatalf("expected PENDING=1, got %v", pending)
	}

	clock = clock.Add(48 * time.Hour)
	if err := recorder.Record(ctx); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	_, total, err = store.ListStats(ctx, queue.StatFilter{Names: []string{"jobs"}}, queue.Page{})
	if err != nil {
		t.Fatalf("ListStats failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected expired samples pruned, got %d", total)
	}
}

func TestSamplesIncludeWorkerTotals(t *testing.T) {
	snap := queue.FleetSnapshot{
		Jobs:          map[queue.JobStatus]int{queue.JobRunning: 2},
		Instances:     map[queue.InstanceStatus]int{queue.InstanceOnline: 1},
		Notifications: map[queue.NotificationStatus]int{},
		BusyWorkers:   2,
		TotalWorkers:  4,
	}
	samples := Samples(snap)
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(samples))
	}
	last := samples[len(samples)-1]
	if last.Name != "workers_total" || last.Value != 4 {
		t.Fatalf("unexpected last sample: %+v", last)
	}
}
