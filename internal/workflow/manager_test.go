package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"encodefleet/internal/config"
	"encodefleet/internal/fleet"
	"encodefleet/internal/queue"
	"encodefleet/internal/services"
	"encodefleet/internal/testsupport"
	"encodefleet/internal/workflow"
)

type stubExecutor struct {
	fn func(ctx context.Context, job *queue.Job) (json.RawMessage, error)
}

func (s stubExecutor) Execute(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	return s.fn(ctx, job)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []queue.CompletionEvent
	ch     chan queue.CompletionEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan queue.CompletionEvent, 16)}
}

func (r *eventRecorder) HandleCompletion(_ context.Context, event queue.CompletionEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.ch <- event
}

func (r *eventRecorder) wait(t *testing.T, n int) []queue.CompletionEvent {
	t.Helper()
	out := make([]queue.CompletionEvent, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case event := <-r.ch:
			out = append(out, event)
		case <-deadline:
			t.Fatalf("timed out waiting for %d completion events, got %d", n, len(out))
		}
	}
	return out
}

func newManager(t *testing.T, exec func(context.Context, *queue.Job) (json.RawMessage, error), opts ...testsupport.ConfigOption) (*config.Config, *queue.Store, *workflow.Manager, *eventRecorder) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Instance.WorkersPerCPUCore = 2
	store := testsupport.MustOpenStore(t, cfg)
	registry := fleet.NewRegistry(cfg, store, nil)
	if _, err := registry.Register(context.Background()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	recorder := newEventRecorder()
	mgr := workflow.NewManager(cfg, store, registry, stubExecutor{fn: exec}, nil, workflow.WithEventSink(recorder))
	return cfg, store, mgr, recorder
}

func succeed(context.Context, *queue.Job) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":true}`), nil
}

func TestManagerRunsDispatchedJobs(t *testing.T) {
	_, store, mgr, recorder := newManager(t, succeed, testsupport.WithWorkersMax(2))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		testsupport.NewJob(t, store, map[string]int{"n": i}, 0)
	}

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	events := recorder.wait(t, 3)
	for _, event := range events {
		if event.Status != queue.JobSuccessful || !event.Success {
			t.Fatalf("unexpected event: %#v", event)
		}
	}
	jobs, _, err := store.ListJobs(ctx, queue.JobFilter{Statuses: []queue.JobStatus{queue.JobSuccessful}}, queue.Page{})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 successful jobs, got %d", len(jobs))
	}
	workers, _, err := store.ListWorkers(ctx, queue.WorkerFilter{}, queue.Page{})
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	if len(workers) > 2 {
		t.Fatalf("expected at most 2 worker slots, got %d", len(workers))
	}
}

func TestManagerCancelFailsExecution(t *testing.T) {
	started := make(chan string, 1)
	block := func(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
		started <- job.Key
		<-ctx.Done()
		return json.RawMessage(`{"error":"cancelled"}`), services.Wrap(services.ErrCanceled, "test", "execute", "", ctx.Err())
	}
	_, store, mgr, recorder := newManager(t, block)
	job := testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	select {
	case key := <-started:
		if key != job.Key {
			t.Fatalf("unexpected job started: %s", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	if n := mgr.Cancel(job.Key, "unknown"); n != 1 {
		t.Fatalf("expected 1 cancelled execution, got %d", n)
	}

	events := recorder.wait(t, 1)
	if events[0].Status != queue.JobFailed {
		t.Fatalf("expected FAILED after cancel, got %s", events[0].Status)
	}
}

func TestManagerIgnoresDuplicateCompletion(t *testing.T) {
	var store *queue.Store
	done := make(chan struct{})
	reportFirst := func(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
		defer close(done)
		if _, err := store.CompleteJob(ctx, job.Key, job.Attempt, json.RawMessage(`{"via":"api"}`), true); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"via":"executor"}`), nil
	}
	_, s, mgr, _ := newManager(t, reportFirst)
	store = s
	job := testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-done

	deadline := time.Now().Add(5 * time.Second)
	for {
		logs, _, err := store.ListLogs(context.Background(), queue.LogFilter{JobKeys: []string{job.Key}}, queue.Page{})
		if err != nil {
			t.Fatalf("ListLogs failed: %v", err)
		}
		found := false
		for _, entry := range logs {
			if entry.Message == "duplicate completion ignored" {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected duplicate completion log entry")
		}
		time.Sleep(20 * time.Millisecond)
	}
	mgr.Stop()

	got, err := store.GetJob(context.Background(), job.Key)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if string(got.Outcome) != `{"via":"api"}` {
		t.Fatalf("expected first completion to win, got %s", got.Outcome)
	}
}

func TestManagerFailsOrphanedJobsOnStart(t *testing.T) {
	cfg, store, mgr, recorder := newManager(t, succeed)
	cfg.Instance.ExecuteJobs = false
	job := testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)
	testsupport.MustDispatch(t, store, cfg.Instance.Key)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	events := recorder.wait(t, 1)
	if events[0].JobKey != job.Key || events[0].Status != queue.JobFailed {
		t.Fatalf("unexpected orphan event: %#v", events[0])
	}
}

func TestManagerExecutorPanicFailsJob(t *testing.T) {
	panicky := func(context.Context, *queue.Job) (json.RawMessage, error) {
		panic("boom")
	}
	_, store, mgr, recorder := newManager(t, panicky)
	testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	events := recorder.wait(t, 1)
	if events[0].Status != queue.JobFailed {
		t.Fatalf("expected FAILED, got %s", events[0].Status)
	}
}

func TestManagerStartTwice(t *testing.T) {
	_, _, mgr, _ := newManager(t, succeed)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error starting twice")
	}
	status := mgr.Status(context.Background())
	if !status.Running || status.InstanceKey != "instance-test" || status.InstanceType != queue.InstanceMaster {
		t.Fatalf("unexpected status: %#v", status)
	}
}

func TestManagerTimeoutFailsJob(t *testing.T) {
	slow := func(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return json.RawMessage(`{"kind":"timeout"}`), services.Wrap(services.ErrTimeout, "test", "execute", "", ctx.Err())
		}
		return nil, ctx.Err()
	}
	cfg, store, _, _ := newManager(t, slow)
	cfg.Scheduler.JobTimeout = 1
	registry := fleet.NewRegistry(cfg, store, nil)
	recorder := newEventRecorder()
	mgr := workflow.NewManager(cfg, store, registry, stubExecutor{fn: slow}, nil, workflow.WithEventSink(recorder))
	testsupport.NewJob(t, store, map[string]string{"source": "x"}, 0)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	events := recorder.wait(t, 1)
	if events[0].Status != queue.JobFailed || string(events[0].Outcome) != `{"kind":"timeout"}` {
		t.Fatalf("unexpected timeout event: %#v", events[0])
	}
}

func TestReconcileCancelsReclaimedExecutions(t *testing.T) {
	started := make(chan string, 4)
	stopped := make(chan string, 4)
	block := func(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
		started <- job.Key
		<-ctx.Done()
		stopped <- job.Key
		return json.RawMessage(`{"error":"cancelled"}`), services.Wrap(services.ErrCanceled, "test", "execute", "", ctx.Err())
	}
	_, store, mgr, recorder := newManager(t, block, testsupport.WithWorkersMax(1))
	ctx := context.Background()
	first := testsupport.NewJob(t, store, map[string]string{"source": "a"}, 0)

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}
	running, err := store.GetJob(ctx, first.Key)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	// The reclaimer fails the job, then the instance heartbeats again with
	// every slot idle while the first execution is still running locally.
	if _, _, err := store.ReclaimStaleInstances(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ReclaimStaleInstances failed: %v", err)
	}
	if ok, err := store.Heartbeat(ctx, running.InstanceKey); err != nil || !ok {
		t.Fatalf("Heartbeat failed: %v %v", ok, err)
	}
	second := testsupport.NewJob(t, store, map[string]string{"source": "b"}, 0)
	mgr.Wake()

	select {
	case key := <-started:
		t.Fatalf("job %s started while the reclaimed execution still held the only slot", key)
	case <-time.After(300 * time.Millisecond):
	}

	if n := mgr.Reconcile(ctx); n != 1 {
		t.Fatalf("expected 1 reconciled execution, got %d", n)
	}
	select {
	case key := <-stopped:
		if key != first.Key {
			t.Fatalf("unexpected execution stopped: %s", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reclaimed execution was not cancelled")
	}
	select {
	case key := <-started:
		if key != second.Key {
			t.Fatalf("unexpected job started: %s", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second job never started after reconcile")
	}

	// The late completion of the reclaimed attempt is dropped.
	select {
	case event := <-recorder.ch:
		t.Fatalf("unexpected completion event: %#v", event)
	case <-time.After(100 * time.Millisecond):
	}
	if n := mgr.Reconcile(ctx); n != 0 {
		t.Fatalf("second job is assigned here and must not be cancelled, got %d", n)
	}
}
