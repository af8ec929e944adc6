package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) record(event Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *eventCollector) waitFor(t *testing.T, eventType string, timeout time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, event := range c.events {
			if event.Type == eventType {
				c.mu.Unlock()
				return event
			}
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s event within %v", eventType, timeout)
	return Event{}
}

func newTestWatcher(t *testing.T, collector *eventCollector) *Watcher {
	t.Helper()
	instance, err := New(Options{
		Debounce:     20 * time.Millisecond,
		RenameWindow: 100 * time.Millisecond,
		OnEvent:      collector.record,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = instance.Close() })
	return instance
}

func TestWatcherReportsFileChange(t *testing.T) {
	root := t.TempDir()
	collector := &eventCollector{}
	instance := newTestWatcher(t, collector)

	if err := instance.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	// Idempotent re-watch of the same root.
	if err := instance.Watch(root); err != nil {
		t.Fatalf("rewatch: %v", err)
	}

	path := filepath.Join(root, "nb.ipynb")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := collector.waitFor(t, EventTypeFileChanged, 3*time.Second)
	if event.Path != path {
		t.Fatalf("unexpected path %s", event.Path)
	}
}

func TestWatcherPairsRenameIntoMove(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.ipynb")
	if err := os.WriteFile(oldPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	collector := &eventCollector{}
	instance := newTestWatcher(t, collector)
	if err := instance.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}

	newPath := filepath.Join(root, "new.ipynb")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	event := collector.waitFor(t, EventTypeFileMoved, 3*time.Second)
	if event.Path != newPath || event.OldPath != oldPath {
		t.Fatalf("unexpected move event %+v", event)
	}
}

func TestWatcherUnrelatedCreateDoesNotPairWithRename(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	oldPath := filepath.Join(root, "old.ipynb")
	if err := os.WriteFile(oldPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	collector := &eventCollector{}
	instance := newTestWatcher(t, collector)
	if err := instance.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}

	// Rename out of the tree, then create an unrelated file inside the
	// pairing window.
	if err := os.Rename(oldPath, filepath.Join(outside, "old.ipynb")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	unrelated := filepath.Join(root, "unrelated.txt")
	if err := os.WriteFile(unrelated, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := collector.waitFor(t, EventTypeFileChanged, 3*time.Second)
	if event.Path != unrelated && event.Path != oldPath {
		t.Fatalf("unexpected change path %s", event.Path)
	}

	// Let the rename window lapse so an erroneous pairing would have
	// happened by now.
	time.Sleep(300 * time.Millisecond)
	collector.mu.Lock()
	defer collector.mu.Unlock()
	for _, event := range collector.events {
		if event.Type == EventTypeFileMoved {
			t.Fatalf("unrelated create paired as a move: %+v", event)
		}
	}
}

func TestWatcherCoversNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	collector := &eventCollector{}
	instance := newTestWatcher(t, collector)
	if err := instance.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "nb.ipynb")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := collector.waitFor(t, EventTypeFileChanged, 3*time.Second)
	if event.Path != path {
		t.Fatalf("unexpected path %s", event.Path)
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	instance := newTestWatcher(t, &eventCollector{})
	if err := instance.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := instance.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := instance.Watch(t.TempDir()); err != nil {
		t.Fatalf("watch after close should be a no-op: %v", err)
	}
}
