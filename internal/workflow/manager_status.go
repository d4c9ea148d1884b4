package workflow

import (
	"context"

	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	InstanceKey  string
	InstanceType queue.InstanceType
	LastError    string
	LastJob      *queue.Job
	Active       []string
	Fleet        queue.FleetSnapshot
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJob := m.lastJob
	m.mu.RUnlock()

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		m.logger.Warn("failed to read fleet snapshot", logging.Error(err))
	}

	summary := StatusSummary{
		Running:      running,
		InstanceKey:  m.registry.Key(),
		InstanceType: m.registry.Type(),
		Active:       m.Active(),
		Fleet:        snap,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		copy := *lastJob
		summary.LastJob = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
