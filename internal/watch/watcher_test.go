package watch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vitae/internal/logging"
	"vitae/internal/queue"
	"vitae/internal/services"
	"vitae/internal/testsupport"
)

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.Payload
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, payload queue.Payload, priority queue.Priority) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return queue.ItemID(payload), nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeEnqueuer) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestWatcher(t *testing.T, enqueuer Enqueuer) (*Watcher, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	w := New(cfg, enqueuer, logging.NewNop(),
		WithSettleDelay(10*time.Millisecond),
		WithRescanInterval(50*time.Millisecond),
	)
	return w, cfg.Paths.InboxDir
}

func TestStartScansExistingDocuments(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	w, inbox := newTestWatcher(t, enqueuer)
	testsupport.WriteDocument(t, filepath.Join(inbox, "waiting.txt"), "dropped before startup")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return enqueuer.count() == 1 })

	enqueuer.mu.Lock()
	payload := enqueuer.payloads[0]
	enqueuer.mu.Unlock()
	if payload.Fingerprint == "" {
		t.Fatal("expected a content fingerprint")
	}
	if filepath.Base(payload.SourcePath) != "waiting.txt" {
		t.Fatalf("unexpected payload path %s", payload.SourcePath)
	}
}

func TestDroppedDocumentIsEnqueuedAfterSettling(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	w, inbox := newTestWatcher(t, enqueuer)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	testsupport.WriteDocument(t, filepath.Join(inbox, "new.txt"), "fresh document")
	waitFor(t, time.Second, func() bool { return enqueuer.count() == 1 })
}

func TestUnchangedDocumentIsNotReenqueued(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	w, inbox := newTestWatcher(t, enqueuer)
	testsupport.WriteDocument(t, filepath.Join(inbox, "stable.txt"), "same content")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return enqueuer.count() == 1 })

	// Let at least one rescan pass; the unchanged file must stay enqueued
	// exactly once.
	time.Sleep(120 * time.Millisecond)
	if got := enqueuer.count(); got != 1 {
		t.Fatalf("expected 1 enqueue, got %d", got)
	}
}

func TestModifiedDocumentIsReenqueued(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	w, inbox := newTestWatcher(t, enqueuer)
	path := filepath.Join(inbox, "doc.txt")
	testsupport.WriteDocument(t, path, "first draft")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return enqueuer.count() == 1 })

	testsupport.WriteDocument(t, path, "second draft with changes")
	waitFor(t, time.Second, func() bool { return enqueuer.count() == 2 })
}

func TestNonDocumentFilesAreIgnored(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	w, inbox := newTestWatcher(t, enqueuer)
	testsupport.WriteDocument(t, filepath.Join(inbox, "notes.pdf"), "binary-ish")
	testsupport.WriteDocument(t, filepath.Join(inbox, ".hidden.swp"), "editor junk")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(120 * time.Millisecond)
	if got := enqueuer.count(); got != 0 {
		t.Fatalf("expected no enqueues, got %d", got)
	}
}

func TestQueueFullDefersToNextRescan(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	enqueuer.setError(services.Wrap(services.ErrQueueFull, "enqueue", "capacity reached", nil))
	w, inbox := newTestWatcher(t, enqueuer)
	testsupport.WriteDocument(t, filepath.Join(inbox, "deferred.txt"), "waiting for room")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	enqueuer.setError(nil)
	waitFor(t, time.Second, func() bool { return enqueuer.count() == 1 })
}
