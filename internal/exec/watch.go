package exec

import (
	"sync"
	"time"

	"cellrun/internal/logging"
	"cellrun/internal/watcher"
)

// selfSaveWindow brackets how close a change event may follow one of
// our own saves and still be attributed to it.
const selfSaveWindow = 2 * time.Second

// TreeWatcher is the change-watcher surface the core consumes.
type TreeWatcher interface {
	Watch(root string) error
}

// WatchGuard lazily starts the tree watch the first time an execution
// with a backing document registers, and counts registrations so the
// coordinator can tell whether anything still depends on it. The
// underlying watch keeps running once started; stopping and restarting
// it per execution would drop events between back-to-back runs.
type WatchGuard struct {
	mu      sync.Mutex
	watcher TreeWatcher
	root    string
	logger  *logging.Logger
	refs    int
	started bool
}

func NewWatchGuard(treeWatcher TreeWatcher, root string, logger *logging.Logger) *WatchGuard {
	return &WatchGuard{
		watcher: treeWatcher,
		root:    root,
		logger:  logger,
	}
}

func (g *WatchGuard) Acquire() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refs++
	if g.started || g.watcher == nil {
		return
	}
	if err := g.watcher.Watch(g.root); err != nil {
		g.logger.Warn("tree watch start failed", map[string]string{
			"root":  g.root,
			"error": err.Error(),
		})
		return
	}
	g.started = true
}

func (g *WatchGuard) Release() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refs > 0 {
		g.refs--
	}
}

func (g *WatchGuard) Active() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refs
}

// HandleFileEvent keeps identity bookkeeping in step with external
// filesystem activity. A move repoints the stable identity so an
// in-flight execution writes back to the renamed file, not the old
// path. Change events are checked against the identity's recorded save
// time so our own write-backs are not reported as external edits.
func (c *Coordinator) HandleFileEvent(evt watcher.Event) {
	switch evt.Type {
	case watcher.EventTypeFileChanged:
		if c.isOwnSave(evt) {
			return
		}
		c.logger.Info("document changed externally", map[string]string{
			"path": evt.Path,
		})
	case watcher.EventTypeFileMoved:
		if err := c.resolver.Move(evt.OldPath, evt.Path); err != nil {
			c.logger.Warn("identity move failed", map[string]string{
				"old_path": evt.OldPath,
				"path":     evt.Path,
				"error":    err.Error(),
			})
			return
		}
		c.logger.Info("document moved", map[string]string{
			"old_path": evt.OldPath,
			"path":     evt.Path,
		})
	case watcher.EventTypeWatchError:
		c.logger.Warn("watch error", map[string]string{
			"error": evt.Path,
		})
	}
}

func (c *Coordinator) isOwnSave(evt watcher.Event) bool {
	touched, err := c.resolver.LastTouched(evt.Path)
	if err != nil || touched.IsZero() {
		return false
	}
	delta := evt.Timestamp.Sub(touched)
	if delta < 0 {
		delta = -delta
	}
	return delta < selfSaveWindow
}
