package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteDocument drops a small document file at the target path, creating
// parent directories as needed, and returns the path.
func WriteDocument(t testing.TB, path, contents string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
