package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"encodefleet/internal/queue"
)

const testJobInput = `{"source":"/media/in.mkv","outputs":[{"name":"mp4","args":["-c:v","libx264"]}]}`

func TestJobsCreateListPreview(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "jobs", "create", "--input", testJobInput, "--priority", "5")
	if err != nil {
		t.Fatalf("jobs create: %v", err)
	}
	requireContains(t, out, "Created job")
	requireContains(t, out, "Pending")

	jobs := storedJobs(t, env)
	if len(jobs) != 1 || jobs[0].Priority != 5 {
		t.Fatalf("unexpected stored jobs: %+v", jobs)
	}
	key := jobs[0].Key

	out, _, err = runCLI(t, env, "jobs", "list", "--status", "PENDING")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, key)
	requireContains(t, out, "Page 1 of 1 (1 total)")

	out, _, err = runCLI(t, env, "jobs", "preview", key)
	if err != nil {
		t.Fatalf("jobs preview: %v", err)
	}
	requireContains(t, out, key)
}

func TestJobsCreateFromFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "job.json")
	if err := os.WriteFile(path, []byte(testJobInput), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, _, err := runCLI(t, env, "--json", "jobs", "create", "--input-file", path)
	if err != nil {
		t.Fatalf("jobs create: %v", err)
	}
	var job struct {
		Key    string `json:"key"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode json output %q: %v", out, err)
	}
	if job.Key == "" || job.Status != string(queue.JobPending) {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestJobsCreateRejectsInvalidInput(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "jobs", "create", "--input", "{not json"); err == nil {
		t.Fatal("expected malformed JSON to be rejected")
	}
	_, _, err := runCLI(t, env, "jobs", "create", "--input", `{"outputs":[]}`)
	if err == nil {
		t.Fatal("expected daemon validation error")
	}
	requireContains(t, err.Error(), "VALIDATION")
}

func TestJobsPriorityAndDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "jobs", "create", "--input", testJobInput); err != nil {
		t.Fatalf("jobs create: %v", err)
	}
	jobs := storedJobs(t, env)
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	key := jobs[0].Key

	out, _, err := runCLI(t, env, "jobs", "priority", key, "9")
	if err != nil {
		t.Fatalf("jobs priority: %v", err)
	}
	requireContains(t, out, "priority 9")

	if _, _, err := runCLI(t, env, "jobs", "priority", key, "high"); err == nil {
		t.Fatal("expected non-integer priority to fail")
	}

	if _, _, err := runCLI(t, env, "jobs", "delete"); err == nil || !strings.Contains(err.Error(), "filter") {
		t.Fatalf("expected unfiltered delete to be refused, got %v", err)
	}

	out, _, err = runCLI(t, env, "jobs", "delete", "--key", key)
	if err != nil {
		t.Fatalf("jobs delete: %v", err)
	}
	requireContains(t, out, "Deleted 1 job(s)")
}

func storedJobs(t *testing.T, env *cliTestEnv) []*queue.Job {
	t.Helper()
	jobs, _, err := env.store.ListJobs(context.Background(), queue.JobFilter{}, queue.Page{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	return jobs
}

func TestJobsListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No results")
}
