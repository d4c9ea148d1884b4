package fleet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"encodefleet/internal/queue"
	"encodefleet/internal/testsupport"
)

func fixedHost() HostInfo {
	return HostInfo{Hostname: "probe-host", IP: "10.0.0.5", CPUCores: 8, CPUMHz: 3200, MemoryTotal: 1 << 34}
}

func TestInstanceKeyStableAcrossCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Instance.Key = ""

	first := InstanceKey(cfg, "encoder-01")
	second := InstanceKey(cfg, "encoder-01")
	if first != second {
		t.Fatalf("expected stable key, got %q and %q", first, second)
	}
	if other := InstanceKey(cfg, "encoder-02"); other == first {
		t.Fatalf("expected distinct hosts to get distinct keys")
	}

	cfg.Instance.Key = "pinned"
	if got := InstanceKey(cfg, "encoder-01"); got != "pinned" {
		t.Fatalf("expected configured key override, got %q", got)
	}
}

func TestRegisterDerivesCapacity(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkersMax(3))
	cfg.Instance.WorkersPerCPUCore = 2
	store := testsupport.MustOpenStore(t, cfg)
	registry := newRegistry(cfg, store, nil, fixedHost)

	inst, err := registry.Register(context.Background())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if inst.Key != "instance-test" {
		t.Fatalf("expected configured key, got %q", inst.Key)
	}
	if inst.Type != queue.InstanceMaster {
		t.Fatalf("expected MASTER, got %s", inst.Type)
	}
	if inst.WorkersMax != 3 {
		t.Fatalf("expected workers_max 3, got %d", inst.WorkersMax)
	}
	if inst.Specs.Hostname != "test-host" {
		t.Fatalf("expected hostname override, got %q", inst.Specs.Hostname)
	}
	if inst.Specs.CPUCores != 8 || inst.Specs.IP != "10.0.0.5" {
		t.Fatalf("unexpected specs: %+v", inst.Specs)
	}
	if registry.Instance() == nil || registry.Instance().Key != inst.Key {
		t.Fatalf("expected registry to remember the instance")
	}
}

func TestRegisterSlave(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSlave())
	store := testsupport.MustOpenStore(t, cfg)
	registry := newRegistry(cfg, store, nil, fixedHost)

	inst, err := registry.Register(context.Background())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if inst.Type != queue.InstanceSlave {
		t.Fatalf("expected SLAVE, got %s", inst.Type)
	}
}

func TestHeartbeatRegistersAgainAfterDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := newRegistry(cfg, store, nil, fixedHost)
	ctx := context.Background()

	if _, err := registry.Register(ctx); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Heartbeat(ctx); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	if _, _, err := store.DeleteInstances(ctx, queue.InstanceFilter{Keys: []string{registry.Key()}}); err != nil {
		t.Fatalf("DeleteInstances failed: %v", err)
	}
	if _, err := store.GetInstance(ctx, registry.Key()); err == nil {
		t.Fatalf("expected instance to be gone")
	}

	if err := registry.Heartbeat(ctx); err != nil {
		t.Fatalf("Heartbeat after delete failed: %v", err)
	}
	inst, err := store.GetInstance(ctx, registry.Key())
	if err != nil {
		t.Fatalf("expected instance to be registered again: %v", err)
	}
	if inst.Status != queue.InstanceOnline {
		t.Fatalf("expected ONLINE, got %s", inst.Status)
	}
}

func TestCPUMHz(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpuinfo")
	content := "processor\t: 0\nmodel name\t: Test CPU\ncpu MHz\t\t: 2894.561\ncache size\t: 512 KB\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write cpuinfo: %v", err)
	}
	if got := cpuMHz(path); got != 2894.561 {
		t.Fatalf("cpuMHz = %v, want 2894.561", got)
	}
	if got := cpuMHz(filepath.Join(dir, "missing")); got != 0 {
		t.Fatalf("expected 0 for missing file, got %v", got)
	}
}

func TestProbeHostReportsCores(t *testing.T) {
	info := ProbeHost()
	if info.CPUCores < 1 {
		t.Fatalf("expected at least one core, got %d", info.CPUCores)
	}
}
