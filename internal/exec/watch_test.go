package exec

import (
	"sync"
	"testing"
	"time"

	"cellrun/internal/logging"
	"cellrun/internal/watcher"
)

type fakeTreeWatcher struct {
	mu    sync.Mutex
	roots []string
	err   error
}

func (w *fakeTreeWatcher) Watch(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.roots = append(w.roots, root)
	return nil
}

func TestWatchGuardStartsOnce(t *testing.T) {
	tree := &fakeTreeWatcher{}
	logger := logging.NewLoggerWithOutput(nil, logging.LevelError, nil)
	guard := NewWatchGuard(tree, "/notebooks", logger)

	guard.Acquire()
	guard.Acquire()
	guard.Release()
	guard.Acquire()

	tree.mu.Lock()
	watches := len(tree.roots)
	tree.mu.Unlock()
	if watches != 1 {
		t.Fatalf("expected a single watch start, got %d", watches)
	}
	if guard.Active() != 2 {
		t.Fatalf("expected 2 active refs, got %d", guard.Active())
	}

	guard.Release()
	guard.Release()
	guard.Release() // extra release stays at zero
	if guard.Active() != 0 {
		t.Fatalf("expected 0 active refs, got %d", guard.Active())
	}
}

func TestWatchGuardNilWatcher(t *testing.T) {
	logger := logging.NewLoggerWithOutput(nil, logging.LevelError, nil)
	guard := NewWatchGuard(nil, ".", logger)
	guard.Acquire()
	guard.Release()
}

func TestHandleFileEventFiltersOwnSaves(t *testing.T) {
	resolver := newFakeResolver()
	buffer := logging.NewLogBuffer(16)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	coordinator := NewCoordinator(CoordinatorOptions{
		Resolver: resolver,
		Logger:   logger,
	})

	if err := resolver.Touch("nb.ipynb"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	coordinator.HandleFileEvent(watcher.Event{
		Type:      watcher.EventTypeFileChanged,
		Path:      "nb.ipynb",
		Timestamp: time.Now().UTC(),
	})
	for _, entry := range buffer.List() {
		if entry.Message == "document changed externally" {
			t.Fatalf("own save reported as external edit: %+v", entry)
		}
	}

	coordinator.HandleFileEvent(watcher.Event{
		Type:      watcher.EventTypeFileChanged,
		Path:      "other.ipynb",
		Timestamp: time.Now().UTC(),
	})
	found := false
	for _, entry := range buffer.List() {
		if entry.Message == "document changed externally" && entry.Context["path"] == "other.ipynb" {
			found = true
		}
	}
	if !found {
		t.Fatal("external edit not reported")
	}
}

func TestHandleFileEventMovesIdentity(t *testing.T) {
	env := newTestEnv(t, newFakeSession("k1", 1, "2"))

	id, err := env.resolver.Index("old.ipynb")
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	env.coordinator.HandleFileEvent(watcher.Event{
		Type:    watcher.EventTypeFileMoved,
		OldPath: "old.ipynb",
		Path:    "new.ipynb",
	})

	path, err := env.resolver.Path(id)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if path != "new.ipynb" {
		t.Fatalf("identity not repointed: %s", path)
	}
}
