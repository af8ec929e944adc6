//go:build unix

package watcher

import (
	"os"
	"syscall"
)

// fileID extracts the inode backing a file. Rename pairing matches on
// it, so a Create only ever pairs with the Rename of the same file.
func fileID(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return stat.Ino, true
}
