package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteExecutable writes a shell script to path, creating parent directories.
// Tests use it to stand in for the encoder and probe binaries.
func WriteExecutable(t testing.TB, path, body string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
