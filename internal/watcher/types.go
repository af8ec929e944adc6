package watcher

import (
	"sync"
	"time"

	"cellrun/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	EventTypeFileChanged = "file_changed"
	EventTypeFileMoved   = "file_moved"
	EventTypeWatchError  = "watch_error"
)

// Event is a single observed filesystem change. For file_moved events
// OldPath carries the pre-rename path.
type Event struct {
	Type      string
	Path      string
	OldPath   string
	Timestamp time.Time
}

// Options controls watcher behavior.
type Options struct {
	Logger       *logging.Logger
	Debounce     time.Duration
	RenameWindow time.Duration
	OnEvent      func(Event)
}

// Watcher is the fsnotify-backed recursive tree watcher.
type Watcher struct {
	watcher   *fsnotify.Watcher
	mutex     sync.Mutex
	roots     map[string]struct{}
	watched   map[string]struct{}
	inodes    map[string]uint64
	debouncer *debouncer
	pending   []pendingRename
	events    chan fsnotify.Event
	errors    chan error
	done      chan struct{}
	closed    bool

	logger       *logging.Logger
	onEvent      func(Event)
	renameWindow time.Duration
}

type pendingRename struct {
	path  string
	inode uint64
	timer *time.Timer
}
