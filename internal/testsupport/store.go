package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"encodefleet/internal/config"
	"encodefleet/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RegisterInstance registers an ONLINE instance with a fixed slot bound.
func RegisterInstance(t testing.TB, store *queue.Store, key string, workersMax int) *queue.Instance {
	t.Helper()

	inst, err := store.RegisterInstance(context.Background(), key, queue.InstanceMaster, queue.InstanceSpecs{
		Hostname:          key,
		CPUCores:          workersMax,
		WorkersPerCPUCore: 1,
		WorkersCap:        workersMax,
	})
	if err != nil {
		t.Fatalf("store.RegisterInstance: %v", err)
	}
	return inst
}

// NewJob creates a PENDING job whose input is the JSON encoding of input.
func NewJob(t testing.TB, store *queue.Store, input any, priority int) *queue.Job {
	t.Helper()

	raw, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("encode job input: %v", err)
	}
	job, err := store.CreateJob(context.Background(), raw, priority)
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}

// MustDispatch dispatches the next job onto instanceKey or fails the test.
func MustDispatch(t testing.TB, store *queue.Store, instanceKey string) *queue.Dispatch {
	t.Helper()

	dispatch, err := store.DispatchNext(context.Background(), instanceKey)
	if err != nil {
		t.Fatalf("store.DispatchNext: %v", err)
	}
	return dispatch
}
