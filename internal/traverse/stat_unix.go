//go:build !windows

package traverse

import (
	"io/fs"
	"syscall"

	"github.com/lumipallolabs/dirsize/internal/model"
)

// statEntry fills the identity and allocation fields of e from info.
func statEntry(e *Entry, info fs.FileInfo) {
	e.Size = info.Size()
	e.Alloc = info.Size()
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	e.ID = model.FileID{Dev: uint64(stat.Dev), Ino: uint64(stat.Ino)}
	e.HasID = true
	e.Links = uint64(stat.Nlink)
	// Blocks is in 512-byte units regardless of the filesystem block size.
	e.Alloc = int64(stat.Blocks) * 512
}

// deviceOf returns the device the root lives on, or false if unknown.
func deviceOf(info fs.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(stat.Dev), true
}
