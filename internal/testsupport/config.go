package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"encodefleet/internal/config"
)

// TestPassword is the API password seeded into generated configs.
const TestPassword = "test-password"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.BlobDir = filepath.Join(base, "blobs")
	cfgVal.Executor.WorkDir = filepath.Join(base, "work")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.API.Password = TestPassword
	cfgVal.API.Env = "test"
	cfgVal.Instance.Key = "instance-test"
	cfgVal.Instance.Hostname = "test-host"
	cfgVal.Scheduler.PollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkersMax caps worker slots on the test instance.
func WithWorkersMax(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Instance.WorkersMax = n
	}
}

// WithConfig applies an arbitrary edit to the generated config.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// WithSlave registers the test host as a SLAVE instance.
func WithSlave() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Instance.Type = config.InstanceTypeSlave
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default executor binary is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Executor.Binary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteExecutable(b.t, filepath.Join(binDir, name), "#!/bin/sh\nexit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
