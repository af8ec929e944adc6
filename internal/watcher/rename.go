package watcher

import (
	"os"
	"path/filepath"
	"time"
)

// fsnotify reports a move inside the watched tree as a Rename on the
// old path followed by a Create on the new one. trackRename holds the
// old path, together with the inode recorded for it, for a short
// window so resolveRename can pair the two into a single file_moved
// event. An unpaired rename flushes as a plain change so subscribers
// still notice the file went away.
func (watcher *Watcher) trackRename(oldPath string) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	entry := pendingRename{path: oldPath, inode: watcher.inodes[oldPath]}
	delete(watcher.inodes, oldPath)
	entry.timer = time.AfterFunc(watcher.renameWindow, func() {
		watcher.expireRename(oldPath)
	})
	watcher.pending = append(watcher.pending, entry)
	watcher.mutex.Unlock()
}

// resolveRename pairs a Create against a pending Rename of the same
// file: by inode where the platform exposes one, by equal base name
// otherwise. An unrelated Create inside the window matches nothing and
// is reported as an ordinary change, while the pending rename expires
// on its own.
func (watcher *Watcher) resolveRename(newPath string, info os.FileInfo) bool {
	var newInode uint64
	haveInode := false
	if info != nil {
		newInode, haveInode = fileID(info)
	}

	watcher.mutex.Lock()
	if watcher.closed || len(watcher.pending) == 0 {
		watcher.mutex.Unlock()
		return false
	}
	match := -1
	for i, entry := range watcher.pending {
		if haveInode && entry.inode != 0 {
			if entry.inode == newInode {
				match = i
				break
			}
			continue
		}
		if filepath.Base(entry.path) == filepath.Base(newPath) {
			match = i
			break
		}
	}
	if match < 0 {
		watcher.mutex.Unlock()
		return false
	}
	entry := watcher.pending[match]
	watcher.pending = append(watcher.pending[:match], watcher.pending[match+1:]...)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	watcher.mutex.Unlock()

	watcher.emit(Event{
		Type:      EventTypeFileMoved,
		Path:      newPath,
		OldPath:   entry.path,
		Timestamp: time.Now().UTC(),
	})
	return true
}

func (watcher *Watcher) expireRename(oldPath string) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	found := false
	for i, entry := range watcher.pending {
		if entry.path == oldPath {
			watcher.pending = append(watcher.pending[:i], watcher.pending[i+1:]...)
			found = true
			break
		}
	}
	watcher.mutex.Unlock()

	if found {
		watcher.emit(Event{
			Type:      EventTypeFileChanged,
			Path:      oldPath,
			Timestamp: time.Now().UTC(),
		})
	}
}
