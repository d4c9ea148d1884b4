package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"encodefleet/internal/logging"
	"encodefleet/internal/metrics"
	"encodefleet/internal/queue"
)

// Start begins background processing. Jobs left bound to this instance by a
// previous process are failed first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	events, err := m.store.FailOrphanedJobs(runCtx, m.registry.Key())
	if err != nil {
		m.logger.Warn("failed to fail orphaned jobs; they stay RUNNING until reclaimed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "orphan_fail_failed"),
			logging.String(logging.FieldErrorHint, "check fleet database access"),
		)
	} else if len(events) > 0 {
		m.logger.Info("failed jobs orphaned by a previous run", logging.Int("count", len(events)))
		Publish(runCtx, m.events, events...)
	}

	loops := []func(context.Context){
		func(ctx context.Context) {
			m.registry.RunHeartbeat(ctx, m.heartbeat.Interval(), func(ctx context.Context) { m.Reconcile(ctx) })
		},
	}
	if m.cfg.Instance.ExecuteJobs {
		loops = append(loops, m.runDispatchLoop)
	}
	if m.registry.Type() == queue.InstanceMaster {
		loops = append(loops, m.heartbeat.RunReclaimer, m.stats.Run)
	}
	m.wg.Add(len(loops))
	for _, loop := range loops {
		go func(loop func(context.Context)) {
			defer m.wg.Done()
			loop(runCtx)
		}(loop)
	}
	return nil
}

// Stop cancels every loop and in-flight execution and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runDispatchLoop(ctx context.Context) {
	logger := m.logger.With(logging.InstanceKey(m.registry.Key()))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Cancelled executions hold a local slot until they return.
		if m.localSlotsFull() {
			m.waitForWorkOrShutdown(ctx)
			continue
		}

		dispatch, err := m.store.DispatchNext(ctx, m.registry.Key())
		switch {
		case err == nil:
			m.launch(ctx, dispatch)
			continue
		case errors.Is(err, queue.ErrNoJob), errors.Is(err, queue.ErrCapacityExhausted):
			m.waitForWorkOrShutdown(ctx)
		case errors.Is(err, queue.ErrNotFound):
			if _, regErr := m.registry.Register(ctx); regErr != nil {
				m.handleDispatchError(ctx, logger, regErr)
			}
		case errors.Is(err, context.Canceled):
			return
		default:
			m.handleDispatchError(ctx, logger, err)
		}
	}
}

func (m *Manager) handleDispatchError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to dispatch next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "dispatch_failed"),
		logging.String(logging.FieldErrorHint, "check fleet database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryDelay):
	}
}

func (m *Manager) waitForWorkOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) launch(ctx context.Context, dispatch *queue.Dispatch) {
	metrics.JobsDispatchedTotal.WithLabelValues(dispatch.Job.InstanceKey).Inc()
	m.setLastJob(dispatch.Job)

	jobCtx, cancel := context.WithTimeout(ctx, m.jobTimeout)
	m.mu.Lock()
	m.executions[dispatch.Job.Key] = &execution{attempt: dispatch.Job.Attempt, cancel: cancel, started: time.Now()}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runJob(jobCtx, dispatch)
	}()
}
