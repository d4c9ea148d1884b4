package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"encodefleet/internal/testsupport"
)

func TestConfigInitValidateShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[api]")
	requireContains(t, out, redacted)
	if strings.Contains(out, testsupport.TestPassword) {
		t.Fatalf("config show leaked the password:\n%s", out)
	}

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigInitSkipsConfigLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENCODEFLEET_API_PASSWORD", "")
	env := &cliTestEnv{configPath: filepath.Join(t.TempDir(), "missing.toml")}

	// Loading would fail validation without a password.
	if _, _, err := runCLI(t, env, "config", "show"); err == nil {
		t.Fatal("expected config show to fail without api.password")
	}

	target := filepath.Join(t.TempDir(), "config.toml")
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err != nil {
		t.Fatalf("config init without valid config: %v", err)
	}
}

func TestPasswordFromEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)
	cfg := *env.cfg
	cfg.API.Password = ""
	writeTestConfig(t, env.configPath, &cfg)

	t.Setenv("ENCODEFLEET_API_PASSWORD", testsupport.TestPassword)
	out, _, err := runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list with env password: %v", err)
	}
	requireContains(t, out, "No results")
}
