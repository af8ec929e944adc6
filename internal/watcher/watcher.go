package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cellrun/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce     = 100 * time.Millisecond
	defaultRenameWindow = 250 * time.Millisecond
)

// New creates a Watcher. OnEvent is invoked from the watcher goroutine
// for every delivered event; it must not block.
func New(options Options) (*Watcher, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	renameWindow := options.RenameWindow
	if renameWindow <= 0 {
		renameWindow = defaultRenameWindow
	}

	instance := &Watcher{
		watcher:      source,
		roots:        make(map[string]struct{}),
		watched:      make(map[string]struct{}),
		inodes:       make(map[string]uint64),
		debouncer:    newDebouncer(debounce),
		events:       make(chan fsnotify.Event, 16),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
		logger:       logger,
		onEvent:      options.OnEvent,
		renameWindow: renameWindow,
	}

	instance.startForwarder(source)
	go instance.run()
	return instance, nil
}

// Watch starts watching root and every directory below it. Calling it
// again for a root already being watched is a no-op.
func (watcher *Watcher) Watch(root string) error {
	if watcher == nil {
		return nil
	}
	root = filepath.Clean(root)

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	if _, ok := watcher.roots[root]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.roots[root] = struct{}{}
	watcher.mutex.Unlock()

	dirs := []string{root}
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				watcher.recordInode(path, info)
			}
			return nil
		}
		if path != root {
			dirs = append(dirs, path)
		}
		return nil
	})

	for _, dir := range dirs {
		if err := watcher.addDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the watcher and stops event processing.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.debouncer != nil {
		watcher.debouncer.stop()
		watcher.debouncer = nil
	}
	for _, pending := range watcher.pending {
		if pending.timer != nil {
			pending.timer.Stop()
		}
	}
	watcher.pending = nil
	watcher.mutex.Unlock()

	close(watcher.done)
	if watcher.watcher == nil {
		return nil
	}
	return watcher.watcher.Close()
}

func (watcher *Watcher) addDir(path string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	if _, ok := watcher.watched[path]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.watched[path] = struct{}{}
	watcher.mutex.Unlock()

	if err := watcher.watcher.Add(path); err != nil {
		watcher.mutex.Lock()
		delete(watcher.watched, path)
		watcher.mutex.Unlock()
		watcher.logger.Warn("watch add failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	watcher.logger.Debug("watch added", map[string]string{"path": path})
	return nil
}

func (watcher *Watcher) run() {
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.emit(Event{
				Type:      EventTypeWatchError,
				Path:      err.Error(),
				Timestamp: time.Now().UTC(),
			})
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Rename):
		watcher.trackRename(event.Name)
	case event.Op.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			_ = watcher.addDir(event.Name)
			return
		}
		if err == nil {
			watcher.recordInode(event.Name, info)
		}
		if watcher.resolveRename(event.Name, info) {
			return
		}
		watcher.scheduleChange(event.Name)
	case event.Op.Has(fsnotify.Write):
		watcher.scheduleChange(event.Name)
	}
}

func (watcher *Watcher) recordInode(path string, info os.FileInfo) {
	id, ok := fileID(info)
	if !ok {
		return
	}
	watcher.mutex.Lock()
	if !watcher.closed {
		watcher.inodes[path] = id
	}
	watcher.mutex.Unlock()
}

func (watcher *Watcher) scheduleChange(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	watcher.debouncer.schedule(path, Event{
		Type:      EventTypeFileChanged,
		Path:      path,
		Timestamp: time.Now().UTC(),
	}, watcher.flush)
	watcher.mutex.Unlock()
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.pop(path)
	watcher.mutex.Unlock()

	if ok {
		watcher.emit(event)
	}
}

func (watcher *Watcher) emit(event Event) {
	if watcher == nil || watcher.onEvent == nil {
		return
	}
	watcher.onEvent(event)
}
