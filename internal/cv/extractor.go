package cv

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"vitae/internal/pipeline"
	"vitae/internal/queue"
	"vitae/internal/services"
)

// maxDocumentBytes bounds how much of a source file the extractor will read.
const maxDocumentBytes = 2 << 20

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// FileExtractor reads plain-text documents from disk. Extraction is a pure
// read, so retrying it is always safe.
type FileExtractor struct {
	maxBytes int64
}

var _ pipeline.Extractor = (*FileExtractor)(nil)

// NewFileExtractor constructs an extractor with the default size bound.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{maxBytes: maxDocumentBytes}
}

// Extract reads the payload's source file and returns its text with
// normalized line endings.
func (e *FileExtractor) Extract(ctx context.Context, payload queue.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := strings.TrimSpace(payload.SourcePath)
	if path == "" {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpExtract, "payload has no source path", nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpExtract, "unsupported document format "+ext, nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrPermanent, pipeline.OpExtract, "source file missing", err)
		}
		return "", services.Wrap(services.ErrTransient, pipeline.OpExtract, "stat source file", err)
	}
	if info.Size() > e.maxBytes {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpExtract, "document exceeds size limit", nil)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, pipeline.OpExtract, "read source file", err)
	}
	if !utf8.Valid(raw) {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpExtract, "document is not valid UTF-8", nil)
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrPermanent, pipeline.OpExtract, "document is empty", nil)
	}
	return text, nil
}
