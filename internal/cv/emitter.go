package cv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vitae/internal/fileutil"
	"vitae/internal/pipeline"
	"vitae/internal/services"
	"vitae/internal/textutil"
)

// JSONEmitter writes approved records as JSON artifacts. Writes go through a
// temp file and rename so a partially written artifact is never visible.
type JSONEmitter struct {
	dir string
}

var _ pipeline.Emitter = (*JSONEmitter)(nil)

// NewJSONEmitter constructs an emitter targeting the given output directory.
func NewJSONEmitter(dir string) *JSONEmitter {
	return &JSONEmitter{dir: dir}
}

// Emit serializes the record and returns the artifact path.
func (e *JSONEmitter) Emit(ctx context.Context, record *pipeline.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if record == nil {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpEmit, "nil record", nil)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, pipeline.OpEmit, "create output directory", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpEmit, "serialize record", err)
	}

	target := filepath.Join(e.dir, artifactName(record))
	if err := fileutil.WriteAtomic(target, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, pipeline.OpEmit, "write artifact", err)
	}
	return target, nil
}

// artifactName derives a stable filename from the candidate name and the
// source text, so re-emitting the same document overwrites its artifact
// instead of accumulating copies.
func artifactName(record *pipeline.Record) string {
	sum := sha256.Sum256([]byte(record.SourceText))
	return fmt.Sprintf("%s-%s.json", textutil.SanitizeToken(record.Name), hex.EncodeToString(sum[:4]))
}
