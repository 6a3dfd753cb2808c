package cv_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitae/internal/cv"
	"vitae/internal/pipeline"
)

func TestEmitWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	record := completeRecord()

	path, err := cv.NewJSONEmitter(dir).Emit(context.Background(), record)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("artifact outside output dir: %s", path)
	}
	if !strings.HasPrefix(filepath.Base(path), "jordan_reyes-") {
		t.Fatalf("unexpected artifact name: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var decoded pipeline.Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if decoded.Name != record.Name || len(decoded.Skills) != len(record.Skills) {
		t.Fatalf("artifact does not match record: %+v", decoded)
	}
	if decoded.SourceText != "" {
		t.Fatal("source text must not leak into the artifact")
	}
}

func TestEmitSameDocumentOverwrites(t *testing.T) {
	dir := t.TempDir()
	record := completeRecord()
	emitter := cv.NewJSONEmitter(dir)

	first, err := emitter.Emit(context.Background(), record)
	if err != nil {
		t.Fatalf("first Emit: %v", err)
	}
	second, err := emitter.Emit(context.Background(), record)
	if err != nil {
		t.Fatalf("second Emit: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable artifact path, got %s then %s", first, second)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single artifact, found %d", len(entries))
	}
}

func TestEmitCreatesOutputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	if _, err := cv.NewJSONEmitter(dir).Emit(context.Background(), completeRecord()); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("output dir missing: %v", err)
	}
}
