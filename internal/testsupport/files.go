package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of filler. A size <= 0 writes an
// empty file.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	var data []byte
	if size > 0 {
		data = make([]byte, size)
		for i := range data {
			data[i] = 0x42
		}
	}
	if err := os.WriteFile(path, data, 0o666); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteExecutable writes a stub script into a per-test bin directory and
// returns its absolute path.
func WriteExecutable(t testing.TB, name, script string) string {
	t.Helper()

	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
