//go:build windows

package traverse

import "io/fs"

// statEntry fills the size fields of e from info. The portable FileInfo on
// Windows carries no volume or file index, so hard links are not detected
// and the allocation size falls back to the logical length.
func statEntry(e *Entry, info fs.FileInfo) {
	e.Size = info.Size()
	e.Alloc = info.Size()
}

// deviceOf reports no device; drive letters are separate roots on Windows.
func deviceOf(fs.FileInfo) (uint64, bool) {
	return 0, false
}
