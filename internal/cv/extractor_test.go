package cv_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"vitae/internal/cv"
	"vitae/internal/queue"
	"vitae/internal/services"
	"vitae/internal/testsupport"
)

func TestExtractReadsAndNormalizesText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candidate.txt")
	testsupport.WriteDocument(t, path, "Jordan Reyes\r\njordan@example.com\r\n")

	text, err := cv.NewFileExtractor().Extract(context.Background(), queue.Payload{SourcePath: path})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if strings.Contains(text, "\r") {
		t.Fatal("expected CRLF normalization")
	}
	if !strings.HasPrefix(text, "Jordan Reyes\n") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candidate.docx")
	testsupport.WriteDocument(t, path, "binaryish")

	_, err := cv.NewFileExtractor().Extract(context.Background(), queue.Payload{SourcePath: path})
	if services.KindOf(err) != services.KindPermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestExtractMissingFileIsPermanent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	_, err := cv.NewFileExtractor().Extract(context.Background(), queue.Payload{SourcePath: path})
	if services.KindOf(err) != services.KindPermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("missing file must not be retried")
	}
}

func TestExtractEmptyDocumentIsPermanent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank.txt")
	testsupport.WriteDocument(t, path, "   \n\n  ")

	_, err := cv.NewFileExtractor().Extract(context.Background(), queue.Payload{SourcePath: path})
	if services.KindOf(err) != services.KindPermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}
