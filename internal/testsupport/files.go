package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"folio/internal/config"
)

// WriteScans creates a directory of fake scan files under the test's base
// directory and returns its path. Each file holds size bytes of a repeating
// pattern; a size <= 0 writes a single byte.
func WriteScans(t testing.TB, cfg *config.Config, name string, size int, files ...string) string {
	t.Helper()

	dir := filepath.Join(BaseDir(cfg), "scans", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if size <= 0 {
		size = 1
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = 0x42
	}
	for _, file := range files {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}
