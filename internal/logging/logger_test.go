package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"vitae/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl)).With(String(FieldComponent, "queue"))

	logger.Info("item enqueued", String(FieldItemID, "abc123"), Int("depth", 4))

	out := buf.String()
	if !strings.Contains(out, "INFO queue: item enqueued") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "item_id=abc123") || !strings.Contains(out, "depth=4") {
		t.Fatalf("missing attrs in output: %q", out)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Warn("failure", String("message", "connection reset by peer"))

	if !strings.Contains(buf.String(), `message="connection reset by peer"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithItemID(context.Background(), "item-9")
	ctx = services.WithOperationName(ctx, "parse")
	WithContext(ctx, logger).Info("running")

	out := buf.String()
	if !strings.Contains(out, "item_id=item-9") || !strings.Contains(out, "operation=parse") {
		t.Fatalf("context fields missing: %q", out)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
}
