package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"encodefleet/internal/config"
	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
)

// InstanceKey returns the configured instance key, or a key derived from the
// hostname so it stays stable across restarts.
func InstanceKey(cfg *config.Config, hostname string) string {
	if cfg != nil && cfg.Instance.Key != "" {
		return cfg.Instance.Key
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(hostname)).String()
}

// Registry keeps the local host registered as a fleet instance.
type Registry struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	probe  func() HostInfo

	key string
	typ queue.InstanceType

	mu       sync.Mutex
	instance *queue.Instance
}

// NewRegistry constructs a registry for the local host.
func NewRegistry(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Registry {
	return newRegistry(cfg, store, logger, ProbeHost)
}

func newRegistry(cfg *config.Config, store *queue.Store, logger *slog.Logger, probe func() HostInfo) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		store:  store,
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "fleet")),
		probe:  probe,
		typ:    queue.InstanceSlave,
	}
	if cfg.IsMaster() {
		r.typ = queue.InstanceMaster
	}
	r.key = InstanceKey(cfg, r.hostname(probe()))
	return r
}

func (r *Registry) hostname(info HostInfo) string {
	if r.cfg.Instance.Hostname != "" {
		return r.cfg.Instance.Hostname
	}
	return info.Hostname
}

// Key returns the instance key used for registration.
func (r *Registry) Key() string {
	return r.key
}

// Type returns the registered instance type.
func (r *Registry) Type() queue.InstanceType {
	return r.typ
}

// Instance returns the most recently registered row, or nil before Register.
func (r *Registry) Instance() *queue.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instance
}

// Specs probes the host and combines it with the configured capacity knobs.
func (r *Registry) Specs() queue.InstanceSpecs {
	info := r.probe()
	return queue.InstanceSpecs{
		Hostname:          r.hostname(info),
		IP:                info.IP,
		CPUCores:          info.CPUCores,
		CPUMHz:            info.CPUMHz,
		MemoryTotal:       info.MemoryTotal,
		MemoryFree:        info.MemoryFree,
		WorkersPerCPUCore: r.cfg.Instance.WorkersPerCPUCore,
		WorkersCap:        r.cfg.Instance.WorkersMax,
	}
}

// Register upserts the instance row.
func (r *Registry) Register(ctx context.Context) (*queue.Instance, error) {
	specs := r.Specs()
	inst, err := r.store.RegisterInstance(ctx, r.key, r.typ, specs)
	if err != nil {
		return nil, fmt.Errorf("register instance: %w", err)
	}
	r.mu.Lock()
	r.instance = inst
	r.mu.Unlock()
	r.logger.Info("instance registered",
		logging.InstanceKey(inst.Key),
		logging.String("type", string(inst.Type)),
		logging.String("hostname", specs.Hostname),
		logging.Int("cpu_cores", specs.CPUCores),
		logging.Int("workers_max", inst.WorkersMax),
	)
	return inst, nil
}

// Heartbeat refreshes the instance heartbeat, registering again when the row
// has been removed.
func (r *Registry) Heartbeat(ctx context.Context) error {
	ok, err := r.store.Heartbeat(ctx, r.key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	r.logger.Warn("instance row missing; registering again",
		logging.InstanceKey(r.key),
		logging.String(logging.FieldEventType, "instance_reregister"),
	)
	_, err = r.Register(ctx)
	return err
}

// RunHeartbeat sends heartbeats every interval until ctx is cancelled.
// afterBeat, when non-nil, runs after each successful heartbeat.
func (r *Registry) RunHeartbeat(ctx context.Context, interval time.Duration, afterBeat func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Heartbeat(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					r.logger.Info("daemon shutting down, heartbeat update cancelled")
					return
				}
				r.logger.Warn("instance heartbeat failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_failed"),
					logging.String(logging.FieldErrorHint, "check fleet database access"),
					logging.String(logging.FieldImpact, "instance may be marked offline by the reclaimer"),
				)
				continue
			}
			if afterBeat != nil {
				afterBeat(ctx)
			}
		}
	}
}
