//go:build !unix

package watcher

import "os"

// No stable inode surface through os.FileInfo here; rename pairing
// falls back to base-name matching.
func fileID(info os.FileInfo) (uint64, bool) {
	return 0, false
}
