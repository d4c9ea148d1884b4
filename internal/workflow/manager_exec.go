package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"encodefleet/internal/logging"
	"encodefleet/internal/metrics"
	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

const completionWriteTimeout = 30 * time.Second

func (m *Manager) runJob(ctx context.Context, dispatch *queue.Dispatch) {
	job := dispatch.Job
	defer m.untrack(job.Key, job.Attempt)

	ctx = services.WithJobKey(ctx, job.Key)
	ctx = services.WithInstanceKey(ctx, job.InstanceKey)
	ctx = services.WithWorkerKey(ctx, job.WorkerKey)
	logger := logging.WithContext(ctx, m.logger).With(logging.Int("attempt", job.Attempt))

	logger.Info("job started", logging.Int("worker_index", dispatch.Worker.Index))
	started := time.Now()
	outcome, execErr := m.execute(ctx, job)
	elapsed := time.Since(started)

	// The completion must be written even when the run was cancelled.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionWriteTimeout)
	defer cancel()

	event, err := m.store.CompleteJob(writeCtx, job.Key, job.Attempt, outcome, execErr == nil)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrDuplicateCompletion):
		metrics.DuplicateCompletionsTotal.Inc()
		logger.Info("duplicate completion ignored", logging.String("reason", err.Error()))
		if _, logErr := m.store.AppendDuplicateCompletionLog(writeCtx, job.Key, job.Attempt, "executor"); logErr != nil {
			logger.Warn("failed to record duplicate completion", logging.Error(logErr))
		}
		return
	case errors.Is(err, queue.ErrNotFound):
		logger.Info("job removed during execution; completion dropped")
		return
	default:
		m.setLastError(err)
		logger.Error("failed to record job completion",
			logging.Error(err),
			logging.String(logging.FieldEventType, "completion_failed"),
			logging.String(logging.FieldErrorHint, "check fleet database access"),
			logging.String(logging.FieldImpact, "job stays RUNNING until its instance is reclaimed"),
		)
		return
	}

	metrics.JobsCompletedTotal.WithLabelValues(string(event.Status)).Inc()
	metrics.JobDurationSeconds.WithLabelValues(string(event.Status)).Observe(elapsed.Seconds())
	if execErr != nil {
		logger.Warn("job failed",
			logging.Error(execErr),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String("kind", services.FailureKind(execErr)),
		)
	} else {
		logger.Info("job succeeded", logging.Duration("elapsed", elapsed))
	}
	Publish(writeCtx, m.events, *event)
}

// execute runs the executor and turns a panic into a failed outcome.
func (m *Manager) execute(ctx context.Context, job *queue.Job) (outcome json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "workflow", "execute job", "executor panicked", nil)
			outcome = json.RawMessage(`{"error":"executor panicked"}`)
			m.logger.Error("executor panic", logging.Any("panic", r), logging.JobKey(job.Key))
		}
	}()
	if m.executor == nil {
		err = services.Wrap(services.ErrConfiguration, "workflow", "execute job", "no executor configured", nil)
		return json.RawMessage(`{"error":"no executor configured"}`), err
	}
	outcome, err = m.executor.Execute(ctx, job)
	if len(outcome) == 0 || !json.Valid(outcome) {
		outcome = json.RawMessage(`{}`)
	}
	return outcome, err
}

// untrack forgets an execution and wakes the dispatch loop, which may have
// been waiting for a local slot.
func (m *Manager) untrack(jobKey string, attempt int) {
	m.mu.Lock()
	if exec, ok := m.executions[jobKey]; ok && exec.attempt == attempt {
		delete(m.executions, jobKey)
	}
	m.mu.Unlock()
	m.Wake()
}

func (m *Manager) localSlotsFull() bool {
	inst := m.registry.Instance()
	if inst == nil || inst.WorkersMax <= 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.executions) >= inst.WorkersMax
}

// Reconcile cancels local executions whose job is no longer RUNNING at the
// tracked attempt on this instance, such as jobs the reclaimer failed while
// heartbeats were late. It reports how many executions it cancelled.
func (m *Manager) Reconcile(ctx context.Context) int {
	// Only executions tracked before the query can be judged by it.
	m.mu.RLock()
	tracked := make(map[string]int, len(m.executions))
	for key, exec := range m.executions {
		if !exec.abandoned {
			tracked[key] = exec.attempt
		}
	}
	m.mu.RUnlock()
	if len(tracked) == 0 {
		return 0
	}

	running, err := m.store.RunningAttempts(ctx, m.registry.Key())
	if err != nil {
		m.logger.Warn("failed to reconcile local executions",
			logging.Error(err),
			logging.String(logging.FieldEventType, "reconcile_failed"),
			logging.String(logging.FieldErrorHint, "check fleet database access"),
		)
		return 0
	}

	cancelled := 0
	m.mu.Lock()
	for key, attempt := range tracked {
		if current, ok := running[key]; ok && current == attempt {
			continue
		}
		exec, ok := m.executions[key]
		if !ok || exec.attempt != attempt || exec.abandoned {
			continue
		}
		exec.abandoned = true
		exec.cancel()
		cancelled++
	}
	m.mu.Unlock()

	if cancelled > 0 {
		logging.WarnWithContext(m.logger, "cancelled executions no longer assigned to this instance", "executions_reconciled",
			logging.Int("count", cancelled),
			logging.String(logging.FieldErrorHint, "heartbeats were late enough for the reclaimer to fail these jobs"),
			logging.String(logging.FieldImpact, "affected jobs stay FAILED until retried"),
		)
	}
	return cancelled
}

// Cancel stops the local executions of the given jobs. Unknown keys are
// ignored. It reports how many executions were cancelled.
func (m *Manager) Cancel(jobKeys ...string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cancelled := 0
	for _, key := range jobKeys {
		if exec, ok := m.executions[key]; ok {
			exec.cancel()
			cancelled++
		}
	}
	return cancelled
}

// CancelAll stops every local execution.
func (m *Manager) CancelAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, exec := range m.executions {
		exec.cancel()
	}
	return len(m.executions)
}

// Active returns the keys of jobs executing locally.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.executions))
	for key := range m.executions {
		keys = append(keys, key)
	}
	return keys
}
